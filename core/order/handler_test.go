package order

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/fsm"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/stretchr/testify/assert"
)

func TestMapStateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cancel paid", fmt.Errorf("order CM-000001: %w", ErrCancelPaid), http.StatusConflict},
		{"line paid out", ErrLineAlreadyPaid, http.StatusConflict},
		{"missing", database.ErrNotFound, http.StatusNotFound},
		{"bad transition", fsm.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{"refunded twice", ErrAlreadyRefunded, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapStateError("o1", tt.err)

			_, status, ok := weberr.Response(err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, status)

			fields, _ := weberr.Fields(err)
			assert.Equal(t, "o1", fields["order_id"])
			assert.True(t, errors.Is(err, tt.err))
		})
	}

	plain := errors.New("connection reset")
	_, _, ok := weberr.Response(mapStateError("o1", plain))
	assert.False(t, ok, "unknown errors stay undecorated")
}
