package changefeed

import (
	"encoding/json"
	"testing"
)

func TestBroker_DeliversOnlyWatchedTables(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe(TableAttendance)
	defer sub.Close()

	b.Publish(Event{Table: TableStudents, Type: Insert, ID: "s1"})
	b.Publish(Event{Table: TableAttendance, Type: Insert, ID: "a1"})

	select {
	case ev := <-sub.C():
		if ev.Table != TableAttendance || ev.ID != "a1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an attendance event")
	}
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestBroker_PublishNeverBlocksAndCountsDrops(t *testing.T) {
	b := NewBroker(1)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Event{Table: TableClasses, Type: Insert, ID: "c1"})
	b.Publish(Event{Table: TableClasses, Type: Insert, ID: "c2"})
	b.Publish(Event{Table: TableClasses, Type: Insert, ID: "c3"})

	if got := sub.TakeDropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if got := sub.TakeDropped(); got != 0 {
		t.Errorf("dropped after take = %d, want 0", got)
	}
	if ev := <-sub.C(); ev.ID != "c1" {
		t.Errorf("first event id = %q, want c1", ev.ID)
	}
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewBroker(1)
	sub := b.Subscribe(TableStudents)
	b.Close()

	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed after broker close")
	}
	// closing twice must not panic
	sub.Close()
	b.Publish(Event{Table: TableStudents, Type: Delete, ID: "s1"})

	late := b.Subscribe(TableStudents)
	if _, ok := <-late.C(); ok {
		t.Fatal("subscription on a closed broker should be closed")
	}
	late.Close()
}

func TestNewEvent_MarshalsRows(t *testing.T) {
	ev, err := NewEvent(TableClasses, Update, "c1", map[string]string{"name": "TK B"}, map[string]string{"name": "TK A"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var n, o map[string]string
	if err := json.Unmarshal(ev.New, &n); err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := json.Unmarshal(ev.Old, &o); err != nil {
		t.Fatalf("old: %v", err)
	}
	if n["name"] != "TK B" || o["name"] != "TK A" {
		t.Errorf("unexpected payloads new=%v old=%v", n, o)
	}
	if ev.At.IsZero() {
		t.Error("At should be set")
	}

	del, err := NewEvent(TableClasses, Delete, "c1", nil, map[string]string{"name": "TK B"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if del.New != nil {
		t.Errorf("delete event should not carry a new row, got %s", del.New)
	}
}
