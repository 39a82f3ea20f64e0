// Package workshop holds scheduled live sessions with a seat capacity.
package workshop

import (
	"errors"
	"time"

	"github.com/irsalhamdi/craft-market/money"
)

var (
	ErrCapacityExceeded = errors.New("workshop is full")
	ErrMeetingURL       = errors.New("an online workshop needs a meeting url and no location")
	ErrLocation         = errors.New("an offline workshop needs a location and no meeting url")
	ErrCapacity         = errors.New("capacity must be positive")
	ErrType             = errors.New("workshop type must be online or offline")
)

type Type string

const (
	Online  Type = "online"
	Offline Type = "offline"
)

type Workshop struct {
	ID            string       `json:"id"`
	HostID        string       `json:"hostId"`
	HostName      string       `json:"hostName"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Type          Type         `json:"type"`
	Location      string       `json:"location,omitempty"`
	MeetingURL    string       `json:"meetingUrl,omitempty"`
	Capacity      int          `json:"capacity"`
	EnrolledCount int          `json:"enrolledCount"`
	Price         money.Amount `json:"price"`
	StartsAt      time.Time    `json:"startsAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Validate checks that the venue matches the workshop type.
func (w Workshop) Validate() error {
	if w.Capacity <= 0 {
		return ErrCapacity
	}

	switch w.Type {
	case Online:
		if w.MeetingURL == "" || w.Location != "" {
			return ErrMeetingURL
		}
	case Offline:
		if w.Location == "" || w.MeetingURL != "" {
			return ErrLocation
		}
	default:
		return ErrType
	}

	return nil
}

func (w Workshop) SeatsLeft() int {
	return w.Capacity - w.EnrolledCount
}

type WorkshopNew struct {
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description" validate:"required"`
	Type        Type         `json:"type" validate:"required,oneof=online offline"`
	Location    string       `json:"location"`
	MeetingURL  string       `json:"meetingUrl" validate:"omitempty,url"`
	Capacity    int          `json:"capacity" validate:"gte=1"`
	Price       money.Amount `json:"price" validate:"gte=0"`
	StartsAt    time.Time    `json:"startsAt" validate:"required"`
}

func Build(nw WorkshopNew, id, hostID, hostName string, now time.Time) (Workshop, error) {
	w := Workshop{
		ID:          id,
		HostID:      hostID,
		HostName:    hostName,
		Name:        nw.Name,
		Description: nw.Description,
		Type:        nw.Type,
		Location:    nw.Location,
		MeetingURL:  nw.MeetingURL,
		Capacity:    nw.Capacity,
		Price:       nw.Price,
		StartsAt:    nw.StartsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return w, w.Validate()
}
