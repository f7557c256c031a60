/*
schedule.go - Session overlap (double-booking) detection

PURPOSE:
  Gates session creation and update. Two half-open intervals [s1,e1) and
  [s2,e2) for the same employee and day overlap iff s1 < e2 AND s2 < e1.
  Back-to-back sessions, where one ends exactly when the next begins, do
  not overlap. Overlap is a hard rejection; there is no auto-resolution.
*/
package billing

import (
	"context"
	"time"
)

// ConflictDetector checks proposed session intervals against committed
// sessions.
type ConflictDetector struct {
	Sessions SessionStore
}

func NewConflictDetector(sessions SessionStore) *ConflictDetector {
	return &ConflictDetector{Sessions: sessions}
}

// overlaps applies the half-open interval test.
func overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && s2 < e1
}

// HasOverlap reports whether [start, end) collides with any existing
// session for the employee on the given day. excludeID skips one session,
// so an update does not conflict with the record being updated.
func (cd *ConflictDetector) HasOverlap(ctx context.Context, employeeID EmployeeID, day time.Time, start, end TimeOfDay, excludeID SessionID) (bool, error) {
	_, err := cd.findOverlap(ctx, employeeID, day, start, end, excludeID)
	if err == nil {
		return true, nil
	}
	if err == errNoOverlap {
		return false, nil
	}
	return false, err
}

// CheckSession validates a proposed session end to end: interval shape,
// duration consistency, and the overlap invariant. Returns a ConflictError
// naming the colliding session on overlap.
func (cd *ConflictDetector) CheckSession(ctx context.Context, s Session) error {
	if !s.Start.Before(s.End) {
		return ErrInvalidInterval
	}
	if !s.DurationMatchesInterval() {
		return ErrDurationMismatch
	}

	existing, err := cd.findOverlap(ctx, s.EmployeeID, s.Date, s.Start, s.End, s.ID)
	if err == errNoOverlap {
		return nil
	}
	if err != nil {
		return err
	}
	return &ConflictError{
		EmployeeID: s.EmployeeID,
		Date:       s.Date,
		Start:      s.Start,
		End:        s.End,
		ExistingID: existing.ID,
	}
}

// errNoOverlap is internal control flow for findOverlap.
var errNoOverlap = sentinel("no overlap")

type sentinel string

func (s sentinel) Error() string { return string(s) }

func (cd *ConflictDetector) findOverlap(ctx context.Context, employeeID EmployeeID, day time.Time, start, end TimeOfDay, excludeID SessionID) (*Session, error) {
	sessions, err := cd.Sessions.ListSessionsByEmployeeDay(ctx, employeeID, DayOf(day))
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		existing := &sessions[i]
		if excludeID != "" && existing.ID == excludeID {
			continue
		}
		if overlaps(start, end, existing.Start, existing.End) {
			return existing, nil
		}
	}
	return nil, errNoOverlap
}
