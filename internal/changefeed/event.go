// Package changefeed carries row-level change notifications from the write
// path to everything that mirrors store state (the data cache, websocket
// clients).
package changefeed

import (
	"encoding/json"
	"time"
)

type Table string

const (
	TableStudents   Table = "students"
	TableClasses    Table = "classes"
	TableAttendance Table = "attendance"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event is one confirmed write. New is set for INSERT/UPDATE, Old for
// UPDATE/DELETE; both hold the table's JSON row.
type Event struct {
	Table Table           `json:"table"`
	Type  EventType       `json:"eventType"`
	ID    string          `json:"id"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
	At    time.Time       `json:"commit_timestamp"`
}

// NewEvent marshals the row images. A nil row leaves the field empty.
func NewEvent(table Table, typ EventType, id string, newRow, oldRow any) (Event, error) {
	ev := Event{Table: table, Type: typ, ID: id, At: time.Now().UTC()}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, err
		}
		ev.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, err
		}
		ev.Old = b
	}
	return ev, nil
}
