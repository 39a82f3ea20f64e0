package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func lesson(id string, secs int) Lesson {
	return Lesson{ID: id, Title: id, Duration: secs, Content: ArticleContent{Body: id}}
}

func sample() Course {
	c := Course{
		Sections: []Section{
			{Title: "Clay", Lessons: []Lesson{lesson("a", 60), lesson("b", 120), lesson("c", 30)}},
			{Title: "Glaze", Lessons: []Lesson{lesson("d", 300)}},
		},
	}
	Recompute(&c)
	return c
}

func ids(c Course) [][]string {
	out := make([][]string, len(c.Sections))
	for i, s := range c.Sections {
		out[i] = []string{}
		for _, l := range s.Lessons {
			out[i] = append(out[i], l.ID)
		}
	}
	return out
}

func TestRecompute(t *testing.T) {
	c := sample()
	if c.TotalLectures != 4 || c.TotalDuration != 510 {
		t.Fatalf("got %d lectures, %ds", c.TotalLectures, c.TotalDuration)
	}

	c.Sections = append(c.Sections, Section{Title: "Empty"})
	Recompute(&c)
	if c.TotalLectures != 4 {
		t.Fatalf("empty section changed the count: %d", c.TotalLectures)
	}
}

func TestMoveLesson(t *testing.T) {
	tests := []struct {
		name     string
		from, to Position
		want     [][]string
	}{
		{"down within section", Position{0, 0}, Position{0, 2}, [][]string{{"b", "c", "a"}, {"d"}}},
		{"up within section", Position{0, 2}, Position{0, 0}, [][]string{{"c", "a", "b"}, {"d"}}},
		{"to another section", Position{0, 1}, Position{1, 0}, [][]string{{"a", "c"}, {"b", "d"}}},
		{"append to another section", Position{0, 1}, Position{1, 1}, [][]string{{"a", "c"}, {"d", "b"}}},
		{"empty a section", Position{1, 0}, Position{0, 3}, [][]string{{"a", "b", "c", "d"}, {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sample()
			if err := MoveLesson(&c, tt.from, tt.to); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, ids(c)); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
			if c.TotalLectures != 4 || c.TotalDuration != 510 {
				t.Fatalf("totals drifted: %d/%d", c.TotalLectures, c.TotalDuration)
			}
		})
	}
}

func TestMoveLessonOutOfRange(t *testing.T) {
	bad := []struct{ from, to Position }{
		{Position{2, 0}, Position{0, 0}},
		{Position{0, 3}, Position{0, 0}},
		{Position{0, 0}, Position{0, 3}},
		{Position{0, 0}, Position{1, 2}},
		{Position{0, 0}, Position{-1, 0}},
	}

	for _, b := range bad {
		c := sample()
		before := ids(c)
		if err := MoveLesson(&c, b.from, b.to); !errors.Is(err, ErrBadPosition) {
			t.Fatalf("%v -> %v: %v", b.from, b.to, err)
		}
		if diff := cmp.Diff(before, ids(c)); diff != "" {
			t.Fatalf("failed move changed the course:\n%s", diff)
		}
	}
}

func TestLessonJSON(t *testing.T) {
	in := []Lesson{
		{ID: "1", Title: "Wedging", Duration: 600, Free: true, Content: VideoContent{URL: "https://v.example/1", Provider: "vimeo"}},
		{ID: "2", Title: "Notes", Content: ArticleContent{Body: "Keep it damp."}},
		{ID: "3", Title: "Templates", Content: ResourceContent{URL: "https://f.example/t.pdf", FileName: "t.pdf", Size: 2048}},
		{ID: "4", Title: "Bowl", Content: ProjectContent{Brief: "Throw a bowl", Deliverables: []string{"photo"}}},
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out []Lesson
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLessonJSONRejects(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{`{"title":"x","type":"podcast","content":{"url":"u"}}`, ErrUnknownContent},
		{`{"title":"x","type":"video","content":null}`, ErrNoContent},
		{`{"title":"x","type":"article"}`, ErrNoContent},
	}

	for _, tt := range tests {
		var l Lesson
		if err := json.Unmarshal([]byte(tt.body), &l); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.body, err, tt.want)
		}
	}

	var l Lesson
	if err := json.Unmarshal([]byte(`{"title":"x","type":"article","content":{"url":"u"}}`), &l); err == nil {
		t.Fatal("a video payload tagged as article must not decode")
	}
}

func TestPreview(t *testing.T) {
	c := sample()
	c.Sections[0].Lessons[0].Free = true

	p := c.Preview()
	if p.Sections[0].Lessons[0].Content == nil {
		t.Fatal("free lesson content hidden")
	}
	if p.Sections[0].Lessons[1].Content != nil {
		t.Fatal("paid lesson content leaked")
	}
	if c.Sections[0].Lessons[1].Content == nil {
		t.Fatal("preview mutated the original course")
	}
	if p.TotalLectures != c.TotalLectures {
		t.Fatal("preview must keep totals")
	}
}

func TestBuild(t *testing.T) {
	n := 0
	newID := func() string { n++; return fmt.Sprint(n) }

	c := Build(CourseNew{
		Name:  "Wheel basics",
		Price: 4900,
		Sections: []Section{{Title: "One", Lessons: []Lesson{
			{Title: "a", Duration: 10, Content: ArticleContent{}},
			{ID: "keep", Title: "b", Duration: 20, Content: ArticleContent{}},
		}}},
	}, "c1", "i1", "Ana", newID, time.Now())

	if c.Sections[0].Lessons[0].ID != "1" || c.Sections[0].Lessons[1].ID != "keep" {
		t.Fatalf("ids: %v", ids(c))
	}
	if c.TotalLectures != 2 || c.TotalDuration != 30 {
		t.Fatalf("totals %d/%d", c.TotalLectures, c.TotalDuration)
	}
}
