package models

import "fmt"

// Status is the lifecycle stage of a group. Transitions run forward only:
// active -> drawn -> distribution -> closed, and any open status may jump to
// closed.
type Status string

const (
	StatusActive       Status = "active"
	StatusDrawn        Status = "drawn"
	StatusDistribution Status = "distribution"
	StatusClosed       Status = "closed"
)

// OpenStatuses are every status except closed.
var OpenStatuses = []Status{StatusActive, StatusDrawn, StatusDistribution}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDrawn, StatusDistribution, StatusClosed:
		return true
	}
	return false
}

func (s Status) IsOpen() bool {
	return s.Valid() && s != StatusClosed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusDrawn || next == StatusClosed
	case StatusDrawn:
		return next == StatusDistribution || next == StatusClosed
	case StatusDistribution:
		return next == StatusClosed
	}
	return false
}

// Label is the human readable name used in replies.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "open for joining"
	case StatusDrawn:
		return "drawn"
	case StatusDistribution:
		return "gifts distributed"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown (%s)", string(s))
}
