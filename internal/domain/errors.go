package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a filter leaves no records to aggregate.
	ErrEmptyInput = errors.New("no records match the requested filter")
	// ErrSessionNotFound is returned when a dashboard session does not exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRosterNotFound indicates the baseline records of a class could not be loaded.
	ErrRosterNotFound = errors.New("class roster not found")
	// ErrInvalidRecord indicates an activity record failed validation.
	ErrInvalidRecord = errors.New("invalid activity record")
	// ErrMissingColumn indicates an uploaded CSV lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// RowError describes a rejected upload row. Line is 1-based and counts the header.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
