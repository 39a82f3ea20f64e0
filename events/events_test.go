package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewAndRecord(t *testing.T) {
	evt, err := New(OrderPaid, map[string]any{"number": "CM-000001", "total": 20800})
	if err != nil {
		t.Fatal(err)
	}
	if evt.ID == "" || evt.OccurredAt.IsZero() {
		t.Fatalf("event not stamped: %+v", evt)
	}

	var rec Recorder
	if err := rec.Publish(context.Background(), evt); err != nil {
		t.Fatal(err)
	}

	got := rec.Events()
	if len(got) != 1 || got[0].Type != OrderPaid {
		t.Fatalf("recorded %+v", got)
	}

	var payload struct {
		Number string `json:"number"`
		Total  int64  `json:"total"`
	}
	if err := json.Unmarshal(got[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Number != "CM-000001" || payload.Total != 20800 {
		t.Fatalf("payload = %+v", payload)
	}
}
