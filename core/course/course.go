// Package course holds courses and their curriculum: ordered sections of
// lessons, each lesson carrying one kind of content.
package course

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/money"
)

var ErrBadPosition = errors.New("lesson position out of range")

type Section struct {
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

type Course struct {
	ID             string       `json:"id"`
	InstructorID   string       `json:"instructorId"`
	InstructorName string       `json:"instructorName"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	ImageURL       string       `json:"imageUrl"`
	Price          money.Amount `json:"price"`
	Sections       []Section    `json:"sections"`
	TotalLectures  int          `json:"totalLectures"`
	TotalDuration  int          `json:"totalDuration"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	Version        int          `json:"-"`
}

// Recompute derives the course totals from its sections.
func Recompute(c *Course) {
	lectures, duration := 0, 0
	for _, s := range c.Sections {
		lectures += len(s.Lessons)
		for _, l := range s.Lessons {
			duration += l.Duration
		}
	}
	c.TotalLectures = lectures
	c.TotalDuration = duration
}

// Position addresses a lesson by section and index within the section.
type Position struct {
	Section int `json:"section"`
	Lesson  int `json:"lesson"`
}

// MoveLesson takes the lesson at from out of its section and inserts it at
// to. The destination index is read after removal, so moving within a
// section behaves like a drag and drop. An index equal to the section length
// appends.
func MoveLesson(c *Course, from, to Position) error {
	if from.Section < 0 || from.Section >= len(c.Sections) {
		return fmt.Errorf("from section %d: %w", from.Section, ErrBadPosition)
	}
	src := c.Sections[from.Section].Lessons
	if from.Lesson < 0 || from.Lesson >= len(src) {
		return fmt.Errorf("from lesson %d: %w", from.Lesson, ErrBadPosition)
	}
	if to.Section < 0 || to.Section >= len(c.Sections) {
		return fmt.Errorf("to section %d: %w", to.Section, ErrBadPosition)
	}

	dstLen := len(c.Sections[to.Section].Lessons)
	if to.Section == from.Section {
		dstLen--
	}
	if to.Lesson < 0 || to.Lesson > dstLen {
		return fmt.Errorf("to lesson %d: %w", to.Lesson, ErrBadPosition)
	}

	l := src[from.Lesson]
	c.Sections[from.Section].Lessons = append(src[:from.Lesson:from.Lesson], src[from.Lesson+1:]...)

	dst := c.Sections[to.Section].Lessons
	moved := make([]Lesson, 0, len(dst)+1)
	moved = append(moved, dst[:to.Lesson]...)
	moved = append(moved, l)
	moved = append(moved, dst[to.Lesson:]...)
	c.Sections[to.Section].Lessons = moved

	Recompute(c)
	return nil
}

// Preview hides the content of every lesson that is not free.
func (c Course) Preview() Course {
	sections := make([]Section, len(c.Sections))
	for i, s := range c.Sections {
		lessons := make([]Lesson, len(s.Lessons))
		for j, l := range s.Lessons {
			if !l.Free {
				l.Content = nil
			}
			lessons[j] = l
		}
		sections[i] = Section{Title: s.Title, Lessons: lessons}
	}
	c.Sections = sections
	return c
}

type CourseNew struct {
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description" validate:"required"`
	Price       money.Amount `json:"price" validate:"gte=0"`
	ImageURL    string       `json:"imageUrl" validate:"omitempty,url"`
	Sections    []Section    `json:"sections"`
}

type CurriculumUp struct {
	Sections []Section `json:"sections" validate:"required"`
}

type LessonMove struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

// Build makes a course owned by the instructor. Lessons without an id get
// one from newID.
func Build(nc CourseNew, id, instructorID, instructorName string, newID func() string, now time.Time) Course {
	c := Course{
		ID:             id,
		InstructorID:   instructorID,
		InstructorName: instructorName,
		Name:           nc.Name,
		Description:    nc.Description,
		ImageURL:       nc.ImageURL,
		Price:          nc.Price,
		Sections:       assignIDs(nc.Sections, newID),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	Recompute(&c)
	return c
}

func assignIDs(sections []Section, newID func() string) []Section {
	if sections == nil {
		return []Section{}
	}
	for i := range sections {
		for j := range sections[i].Lessons {
			if sections[i].Lessons[j].ID == "" {
				sections[i].Lessons[j].ID = newID()
			}
		}
	}
	return sections
}
