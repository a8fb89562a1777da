package cyre

import "github.com/google/uuid"

// newTraceID generates a globally unique, time-sortable id, used as the
// key of each in-flight handler record and as TimeKeeper timer ids. It is
// never part of a channel's identity.
func newTraceID() string {
	return uuid.Must(uuid.NewV7()).String()
}
