package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
)

type dbCourse struct {
	ID             string                   `db:"course_id"`
	InstructorID   string                   `db:"instructor_id"`
	InstructorName string                   `db:"instructor_name"`
	Name           string                   `db:"name"`
	Description    string                   `db:"description"`
	ImageURL       string                   `db:"image_url"`
	Price          int64                    `db:"price"`
	Curriculum     database.JSON[[]Section] `db:"curriculum"`
	TotalLectures  int                      `db:"total_lectures"`
	TotalDuration  int                      `db:"total_duration"`
	CreatedAt      time.Time                `db:"created_at"`
	UpdatedAt      time.Time                `db:"updated_at"`
	Version        int                      `db:"version"`
}

// toDB always recomputes the totals so a stored course never disagrees
// with its curriculum.
func toDB(c Course) dbCourse {
	Recompute(&c)
	if c.Sections == nil {
		c.Sections = []Section{}
	}

	return dbCourse{
		ID:             c.ID,
		InstructorID:   c.InstructorID,
		InstructorName: c.InstructorName,
		Name:           c.Name,
		Description:    c.Description,
		ImageURL:       c.ImageURL,
		Price:          int64(c.Price),
		Curriculum:     database.NewJSON(c.Sections),
		TotalLectures:  c.TotalLectures,
		TotalDuration:  c.TotalDuration,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Version:        c.Version,
	}
}

func (d dbCourse) toCourse() Course {
	return Course{
		ID:             d.ID,
		InstructorID:   d.InstructorID,
		InstructorName: d.InstructorName,
		Name:           d.Name,
		Description:    d.Description,
		ImageURL:       d.ImageURL,
		Price:          money.Amount(d.Price),
		Sections:       d.Curriculum.V,
		TotalLectures:  d.TotalLectures,
		TotalDuration:  d.TotalDuration,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Version:        d.Version,
	}
}

const columns = `course_id, instructor_id, instructor_name, name, description, image_url, price,
	curriculum, total_lectures, total_duration, created_at, updated_at, version`

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses (course_id, instructor_id, instructor_name, name, description, image_url, price,
		curriculum, total_lectures, total_duration, created_at, updated_at, version)
	VALUES (:course_id, :instructor_id, :instructor_name, :name, :description, :image_url, :price,
		:curriculum, :total_lectures, :total_duration, :created_at, :updated_at, :version)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, toDB(c)); err != nil {
		return fmt.Errorf("inserting course[%s]: %w", c.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Course, error) {
	var d dbCourse
	q := `SELECT ` + columns + ` FROM courses WHERE course_id = $1`
	if err := sqlx.GetContext(ctx, db, &d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, database.ErrNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}
	return d.toCourse(), nil
}

func List(ctx context.Context, db sqlx.QueryerContext, instructorID string, limit, offset int) ([]Course, error) {
	q := `SELECT ` + columns + ` FROM courses
	WHERE ($1 = '' OR instructor_id::text = $1)
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	var ds []dbCourse
	if err := sqlx.SelectContext(ctx, db, &ds, q, instructorID, limit, offset); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return toCourses(ds), nil
}

// ListOwned returns the courses a buyer has paid for and not been refunded.
func ListOwned(ctx context.Context, db sqlx.QueryerContext, buyerID string) ([]Course, error) {
	q := `SELECT DISTINCT ON (c.course_id) ` + prefixed("c.") + ` FROM courses c
	JOIN order_items i ON i.item_id = c.course_id AND i.item_type = 'course' AND i.payout_status <> 'refunded'
	JOIN orders o ON o.order_id = i.order_id
	WHERE o.buyer_id = $1 AND o.payment_status IN ('paid', 'partially_refunded')
	ORDER BY c.course_id`

	var ds []dbCourse
	if err := sqlx.SelectContext(ctx, db, &ds, q, buyerID); err != nil {
		return nil, fmt.Errorf("selecting courses owned by user[%s]: %w", buyerID, err)
	}
	return toCourses(ds), nil
}

// Owns reports whether a buyer has a paid, unrefunded line for the course.
func Owns(ctx context.Context, db sqlx.QueryerContext, buyerID, courseID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1 FROM order_items i JOIN orders o ON o.order_id = i.order_id
		WHERE o.buyer_id = $1 AND i.item_id = $2 AND i.item_type = 'course'
			AND i.payout_status <> 'refunded'
			AND o.payment_status IN ('paid', 'partially_refunded')
	)`

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, buyerID, courseID); err != nil {
		return false, fmt.Errorf("checking ownership of course[%s]: %w", courseID, err)
	}
	return ok, nil
}

// UpdateCurriculum stores new sections and their totals, guarded by the
// version the caller read.
func UpdateCurriculum(ctx context.Context, db sqlx.ExtContext, c Course, now time.Time) error {
	const q = `
	UPDATE courses SET curriculum = $2, total_lectures = $3, total_duration = $4, updated_at = $5, version = version + 1
	WHERE course_id = $1 AND version = $6`

	d := toDB(c)
	res, err := db.ExecContext(ctx, q, d.ID, d.Curriculum, d.TotalLectures, d.TotalDuration, now, d.Version)
	if err != nil {
		return fmt.Errorf("updating curriculum of course[%s]: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating curriculum of course[%s]: %w", c.ID, err)
	}
	return database.AffectedOne(n)
}

func prefixed(p string) string {
	return p + `course_id, ` + p + `instructor_id, ` + p + `instructor_name, ` + p + `name, ` +
		p + `description, ` + p + `image_url, ` + p + `price, ` + p + `curriculum, ` +
		p + `total_lectures, ` + p + `total_duration, ` + p + `created_at, ` + p + `updated_at, ` + p + `version`
}

func toCourses(ds []dbCourse) []Course {
	cs := make([]Course, 0, len(ds))
	for _, d := range ds {
		cs = append(cs, d.toCourse())
	}
	return cs
}
