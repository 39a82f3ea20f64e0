package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

// HandleCreate creates a course for the current studio. Selling a course
// requires approved KYC; free courses do not.
func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var nc CourseNew
		if err := web.Decode(w, r, &nc); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(nc); err != nil {
			return weberr.InvalidInput(err)
		}

		var instructor user.User
		if nc.Price > 0 {
			instructor, err = user.RequireApprovedKYC(ctx, db, clm.UserID)
		} else {
			instructor, err = user.Fetch(ctx, db, clm.UserID)
		}
		if err != nil {
			if errors.Is(err, user.ErrKYCNotApproved) {
				return weberr.Forbidden(err)
			}
			return fmt.Errorf("fetching instructor[%s]: %w", clm.UserID, err)
		}

		c := Build(nc, validate.GenerateID(), instructor.ID, instructor.Name, validate.GenerateID, time.Now().UTC())
		if err := Create(ctx, db, c); err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

// HandleShow returns the full curriculum to the instructor, admins and
// buyers who own the course. Everyone else gets a preview.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		if claims.IsUser(ctx, c.InstructorID) || claims.IsAdmin(ctx) {
			return web.Respond(ctx, w, c, http.StatusOK)
		}

		if clm, err := claims.Get(ctx); err == nil {
			owned, err := Owns(ctx, db, clm.UserID, c.ID)
			if err != nil {
				return err
			}
			if owned {
				return web.Respond(ctx, w, c, http.StatusOK)
			}
		}

		return web.Respond(ctx, w, c.Preview(), http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)

		cs, err := List(ctx, db, r.URL.Query().Get("instructor"), pg.Limit, pg.Offset)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		previews := make([]Course, len(cs))
		for i, c := range cs {
			previews[i] = c.Preview()
		}
		return web.Respond(ctx, w, previews, http.StatusOK)
	}
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		cs, err := ListOwned(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleUpdateCurriculum(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var up CurriculumUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(up); err != nil {
			return weberr.InvalidInput(err)
		}

		return editCurriculum(ctx, w, r, db, func(c *Course) error {
			c.Sections = assignIDs(up.Sections, validate.GenerateID)
			Recompute(c)
			return nil
		})
	}
}

func HandleMoveLesson(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var mv LessonMove
		if err := web.Decode(w, r, &mv); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		return editCurriculum(ctx, w, r, db, func(c *Course) error {
			if err := MoveLesson(c, mv.From, mv.To); err != nil {
				return weberr.InvalidInput(err)
			}
			return nil
		})
	}
}

func editCurriculum(ctx context.Context, w http.ResponseWriter, r *http.Request, db *sqlx.DB, edit func(*Course) error) error {
	id := web.Param(r, "id")
	if err := validate.CheckID(id); err != nil {
		return weberr.InvalidInput(err)
	}

	c, err := Fetch(ctx, db, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return weberr.NotFound(err)
		}
		return fmt.Errorf("fetching course[%s]: %w", id, err)
	}

	if !claims.IsUser(ctx, c.InstructorID) && !claims.IsAdmin(ctx) {
		return weberr.Forbidden(errors.New("only the instructor can edit this course"))
	}

	if err := edit(&c); err != nil {
		return err
	}

	if err := UpdateCurriculum(ctx, db, c, time.Now().UTC()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return weberr.Conflict(fmt.Errorf("course[%s] changed concurrently, reload and retry", id))
		}
		return err
	}

	c.Version++
	return web.Respond(ctx, w, c, http.StatusOK)
}
