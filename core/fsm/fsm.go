// Package fsm checks status changes against explicit transition tables.
package fsm

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Table lists, for each state, the states it may move to. A state missing
// from the table is terminal.
type Table[S ~string] map[S][]S

func (t Table[S]) Can(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns an error wrapping ErrInvalidTransition when from cannot move
// to to.
func (t Table[S]) Check(from, to S) error {
	if !t.Can(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// Terminal reports whether no transition leaves s.
func (t Table[S]) Terminal(s S) bool {
	return len(t[s]) == 0
}
