package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownContent = errors.New("unknown lesson content type")
	ErrNoContent      = errors.New("lesson has no content")
)

// ContentType tags the payload of a lesson.
type ContentType string

const (
	TypeVideo    ContentType = "video"
	TypeArticle  ContentType = "article"
	TypeResource ContentType = "resource"
	TypeProject  ContentType = "project"
)

// Content is the payload of a lesson. The set of implementations is closed.
type Content interface {
	Type() ContentType
	content()
}

type VideoContent struct {
	URL      string `json:"url"`
	Provider string `json:"provider,omitempty"`
}

type ArticleContent struct {
	Body string `json:"body"`
}

type ResourceContent struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size,omitempty"`
}

type ProjectContent struct {
	Brief        string   `json:"brief"`
	Deliverables []string `json:"deliverables,omitempty"`
}

func (VideoContent) Type() ContentType    { return TypeVideo }
func (ArticleContent) Type() ContentType  { return TypeArticle }
func (ResourceContent) Type() ContentType { return TypeResource }
func (ProjectContent) Type() ContentType  { return TypeProject }

func (VideoContent) content()    {}
func (ArticleContent) content()  {}
func (ResourceContent) content() {}
func (ProjectContent) content()  {}

// Lesson is one entry of a section. Duration is in seconds.
type Lesson struct {
	ID       string
	Title    string
	Duration int
	Free     bool
	Content  Content
}

type lessonJSON struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Duration int             `json:"duration"`
	Free     bool            `json:"free"`
	Type     ContentType     `json:"type"`
	Content  json.RawMessage `json:"content"`
}

func (l Lesson) MarshalJSON() ([]byte, error) {
	out := lessonJSON{
		ID:       l.ID,
		Title:    l.Title,
		Duration: l.Duration,
		Free:     l.Free,
		Content:  json.RawMessage("null"),
	}

	if l.Content != nil {
		b, err := json.Marshal(l.Content)
		if err != nil {
			return nil, err
		}
		out.Type = l.Content.Type()
		out.Content = b
	}

	return json.Marshal(out)
}

func (l *Lesson) UnmarshalJSON(b []byte) error {
	var in lessonJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	c, err := decodeContent(in.Type, in.Content)
	if err != nil {
		return fmt.Errorf("lesson %q: %w", in.Title, err)
	}

	*l = Lesson{
		ID:       in.ID,
		Title:    in.Title,
		Duration: in.Duration,
		Free:     in.Free,
		Content:  c,
	}
	return nil
}

func decodeContent(t ContentType, raw json.RawMessage) (Content, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoContent
	}

	switch t {
	case TypeVideo:
		return decodeStrict[VideoContent](raw)
	case TypeArticle:
		return decodeStrict[ArticleContent](raw)
	case TypeResource:
		return decodeStrict[ResourceContent](raw)
	case TypeProject:
		return decodeStrict[ProjectContent](raw)
	}
	return nil, fmt.Errorf("%q: %w", t, ErrUnknownContent)
}

// decodeStrict rejects a payload carrying fields of another content type.
func decodeStrict[T Content](raw json.RawMessage) (Content, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s content: %w", v.Type(), err)
	}
	return v, nil
}
