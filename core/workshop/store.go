package workshop

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

type dbWorkshop struct {
	ID            string    `db:"workshop_id"`
	HostID        string    `db:"host_id"`
	HostName      string    `db:"host_name"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	Type          string    `db:"workshop_type"`
	Location      string    `db:"location"`
	MeetingURL    string    `db:"meeting_url"`
	Capacity      int       `db:"capacity"`
	EnrolledCount int       `db:"enrolled_count"`
	Price         int64     `db:"price"`
	StartsAt      time.Time `db:"starts_at"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (d dbWorkshop) toWorkshop() Workshop {
	return Workshop{
		ID:            d.ID,
		HostID:        d.HostID,
		HostName:      d.HostName,
		Name:          d.Name,
		Description:   d.Description,
		Type:          Type(d.Type),
		Location:      d.Location,
		MeetingURL:    d.MeetingURL,
		Capacity:      d.Capacity,
		EnrolledCount: d.EnrolledCount,
		Price:         money.Amount(d.Price),
		StartsAt:      d.StartsAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

const columns = `workshop_id, host_id, host_name, name, description, workshop_type, location, meeting_url,
	capacity, enrolled_count, price, starts_at, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, w Workshop) error {
	const q = `
	INSERT INTO workshops (workshop_id, host_id, host_name, name, description, workshop_type, location, meeting_url,
		capacity, enrolled_count, price, starts_at, created_at, updated_at)
	VALUES (:workshop_id, :host_id, :host_name, :name, :description, :workshop_type, :location, :meeting_url,
		:capacity, :enrolled_count, :price, :starts_at, :created_at, :updated_at)`

	d := dbWorkshop{
		ID:            w.ID,
		HostID:        w.HostID,
		HostName:      w.HostName,
		Name:          w.Name,
		Description:   w.Description,
		Type:          string(w.Type),
		Location:      w.Location,
		MeetingURL:    w.MeetingURL,
		Capacity:      w.Capacity,
		EnrolledCount: w.EnrolledCount,
		Price:         int64(w.Price),
		StartsAt:      w.StartsAt,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}

	if _, err := sqlx.NamedExecContext(ctx, db, q, d); err != nil {
		return fmt.Errorf("inserting workshop[%s]: %w", w.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Workshop, error) {
	var d dbWorkshop
	q := `SELECT ` + columns + ` FROM workshops WHERE workshop_id = $1`
	if err := sqlx.GetContext(ctx, db, &d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workshop{}, database.ErrNotFound
		}
		return Workshop{}, fmt.Errorf("selecting workshop[%s]: %w", id, err)
	}
	return d.toWorkshop(), nil
}

// ListUpcoming returns workshops starting after now, soonest first.
func ListUpcoming(ctx context.Context, db sqlx.QueryerContext, now time.Time, limit, offset int) ([]Workshop, error) {
	q := `SELECT ` + columns + ` FROM workshops WHERE starts_at > $1 ORDER BY starts_at LIMIT $2 OFFSET $3`

	var ds []dbWorkshop
	if err := sqlx.SelectContext(ctx, db, &ds, q, now, limit, offset); err != nil {
		return nil, fmt.Errorf("selecting workshops: %w", err)
	}

	ws := make([]Workshop, 0, len(ds))
	for _, d := range ds {
		ws = append(ws, d.toWorkshop())
	}
	return ws, nil
}

// Reserve takes seats in a single conditional update, so concurrent buyers
// can never push the enrolment past capacity.
func Reserve(ctx context.Context, tx sqlx.ExecerContext, id string, seats int) error {
	const q = `
	UPDATE workshops SET enrolled_count = enrolled_count + $2, updated_at = now()
	WHERE workshop_id = $1 AND enrolled_count + $2 <= capacity`

	res, err := tx.ExecContext(ctx, q, id, seats)
	if err != nil {
		return fmt.Errorf("reserving %d seats of workshop[%s]: %w", seats, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserving %d seats of workshop[%s]: %w", seats, id, err)
	}
	if n != 1 {
		return fmt.Errorf("workshop[%s]: %w", id, ErrCapacityExceeded)
	}
	return nil
}

// Release gives seats back. The count never drops below zero.
func Release(ctx context.Context, tx sqlx.ExecerContext, id string, seats int) error {
	const q = `
	UPDATE workshops SET enrolled_count = GREATEST(enrolled_count - $2, 0), updated_at = now()
	WHERE workshop_id = $1`

	if _, err := tx.ExecContext(ctx, q, id, seats); err != nil {
		return fmt.Errorf("releasing %d seats of workshop[%s]: %w", seats, id, err)
	}
	return nil
}
