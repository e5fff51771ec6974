package datacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/memstore"
	"absensi-backend/internal/students"
)

type fixture struct {
	store    *memstore.Store
	broker   *changefeed.Broker
	cache    *Cache
	classes  *classes.Service
	students *students.Service
	att      *attendance.Service
}

func newFixture(t *testing.T, policy RosterPolicy) *fixture {
	t.Helper()
	store := memstore.New()
	broker := changefeed.NewBroker(changefeed.DefaultBuffer)
	f := &fixture{
		store:    store,
		broker:   broker,
		cache:    New(NewRepoSource(store, store, store), broker, Options{RosterPolicy: policy}),
		classes:  classes.NewService(store, broker),
		students: students.NewService(store, broker),
		att:      attendance.NewService(store, store, broker, time.UTC),
	}
	t.Cleanup(func() {
		f.cache.Close()
		broker.Close()
	})
	return f
}

// writeThrough routes the services' events through the cache before the broker.
func (f *fixture) writeThrough() {
	feed := f.cache.WriteThrough(f.broker)
	f.classes = classes.NewService(f.store, feed)
	f.students = students.NewService(f.store, feed)
	f.att = attendance.NewService(f.store, f.store, feed, time.UTC)
}

// waitForCache polls until cond holds; change events are applied asynchronously.
func waitForCache(t *testing.T, c *Cache, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot: %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) addClass(t *testing.T, name string) classes.Class {
	t.Helper()
	c, err := f.classes.Create(context.Background(), classes.ClassRequest{Name: name})
	if err != nil {
		t.Fatalf("create class %s: %v", name, err)
	}
	return c
}

func (f *fixture) addStudent(t *testing.T, name, nis, class string) students.Student {
	t.Helper()
	s, err := f.students.Create(context.Background(), students.CreateStudentRequest{Name: name, NIS: nis, ClassName: class})
	if err != nil {
		t.Fatalf("create student %s: %v", name, err)
	}
	return s
}

func (f *fixture) mark(t *testing.T, studentID, date, status string, note *string) attendance.Record {
	t.Helper()
	res, err := f.att.Upsert(context.Background(), []attendance.EntryRequest{{StudentID: studentID, Date: date, Status: status, Note: note}})
	if err != nil {
		t.Fatalf("mark %s %s: %v", studentID, status, err)
	}
	return res.Items[0]
}

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, id(r))
	}
	return out
}

func TestNew_StartsLoadingAndEmpty(t *testing.T) {
	f := newFixture(t, PolicyMerge)
	snap := f.cache.Snapshot()
	if !snap.Loading {
		t.Error("cache should be loading before the first Load")
	}
	if snap.Students == nil || len(snap.Students) != 0 {
		t.Errorf("students = %#v, want empty slice", snap.Students)
	}
}

func TestLoad_EmptyStore(t *testing.T) {
	f := newFixture(t, PolicyMerge)
	f.cache.Load(context.Background())

	snap := f.cache.Snapshot()
	if snap.Loading {
		t.Error("loading should be false after Load")
	}
	if len(snap.Students)+len(snap.Classes)+len(snap.Attendance) != 0 {
		t.Errorf("expected empty collections, got %+v", snap)
	}
	if len(snap.Failed) != 0 {
		t.Errorf("failed = %v", snap.Failed)
	}
}

func TestLoad_MatchesStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.addClass(t, "TK B")
	f.addClass(t, "TK A")
	sari := f.addStudent(t, "Sari", "002", "TK A")
	f.addStudent(t, "Budi", "001", "TK B")
	f.mark(t, sari.ID, "2025-01-10", "Hadir", nil)

	f.cache.Load(ctx)
	snap := f.cache.Snapshot()

	wantStudents, _ := f.store.ListStudents(ctx, students.Filter{})
	wantClasses, _ := f.store.ListClasses(ctx)
	wantAtt, _, _ := f.store.ListAttendance(ctx, attendance.ListQuery{})

	if !reflect.DeepEqual(snap.Students, wantStudents) {
		t.Errorf("students = %+v, want %+v", snap.Students, wantStudents)
	}
	if !reflect.DeepEqual(snap.Classes, wantClasses) {
		t.Errorf("classes = %+v, want %+v", snap.Classes, wantClasses)
	}
	if !reflect.DeepEqual(snap.Attendance, wantAtt) {
		t.Errorf("attendance = %+v, want %+v", snap.Attendance, wantAtt)
	}
	if snap.Students[0].Name != "Budi" || snap.Classes[0].Name != "TK A" {
		t.Errorf("collections should be ordered by name: %v / %v", snap.Students[0].Name, snap.Classes[0].Name)
	}
	if snap.Attendance[0].StudentName != "Sari" || snap.Attendance[0].ClassName != "TK A" {
		t.Errorf("attendance should carry the joined student: %+v", snap.Attendance[0])
	}
}

func TestLoad_FailedQueryLeavesOnlyThatCollectionEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.addClass(t, "A")
	f.addStudent(t, "Budi", "001", "A")

	f.cache.Load(ctx)
	f.store.FailOn("ListClasses", errors.New("connection reset"))
	f.cache.Load(ctx)

	snap := f.cache.Snapshot()
	if snap.Loading {
		t.Error("loading should be false even when a query fails")
	}
	if len(snap.Classes) != 0 {
		t.Errorf("classes = %+v, want empty after failed fetch", snap.Classes)
	}
	if len(snap.Students) != 1 {
		t.Errorf("students = %d, want 1", len(snap.Students))
	}
	if !reflect.DeepEqual(snap.Failed, []changefeed.Table{changefeed.TableClasses}) {
		t.Errorf("failed = %v", snap.Failed)
	}

	// no retry on its own; the next Load picks it up again
	f.store.FailOn("ListClasses", nil)
	f.cache.Refresh(ctx)
	if snap := f.cache.Snapshot(); len(snap.Classes) != 1 || len(snap.Failed) != 0 {
		t.Errorf("after refresh: classes=%d failed=%v", len(snap.Classes), snap.Failed)
	}
}

func TestApply_AttendanceFromAnotherSessionAppearsAndDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	st := f.addStudent(t, "Budi", "001", "A")
	f.cache.Load(ctx)

	// another session writes straight to the store
	res, err := f.store.UpsertAttendance(ctx, []attendance.Entry{{StudentID: st.ID, Date: "2025-01-10", Status: attendance.StatusPresent}})
	if err != nil {
		t.Fatal(err)
	}
	rec := res[0].Record
	f.cache.Apply(ctx, changefeed.Event{Table: changefeed.TableAttendance, Type: changefeed.Insert, ID: rec.ID})

	snap := f.cache.Snapshot()
	if len(snap.Attendance) != 1 || snap.Attendance[0].ID != rec.ID || snap.Attendance[0].StudentName != "Budi" {
		t.Fatalf("attendance after insert event = %+v", snap.Attendance)
	}

	f.cache.Apply(ctx, changefeed.Event{Table: changefeed.TableAttendance, Type: changefeed.Delete, ID: rec.ID})
	if snap := f.cache.Snapshot(); len(snap.Attendance) != 0 {
		t.Errorf("attendance after delete event = %+v", snap.Attendance)
	}
}

func TestApply_AttendanceRefetchMissingRemoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	st := f.addStudent(t, "Budi", "001", "A")
	rec := f.mark(t, st.ID, "2025-01-10", "Hadir", nil)
	f.cache.Load(ctx)

	if err := f.store.DeleteAttendance(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	// UPDATE for a row that no longer exists
	f.cache.Apply(ctx, changefeed.Event{Table: changefeed.TableAttendance, Type: changefeed.Update, ID: rec.ID})
	if snap := f.cache.Snapshot(); len(snap.Attendance) != 0 {
		t.Errorf("stale record kept: %+v", snap.Attendance)
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	st := f.addStudent(t, "Budi", "001", "A")
	rec := f.mark(t, st.ID, "2025-01-10", "Hadir", nil)
	f.cache.Load(ctx)

	renamed := st
	renamed.Name = "Budi Santoso"
	stEv, err := changefeed.NewEvent(changefeed.TableStudents, changefeed.Update, st.ID, renamed, st)
	if err != nil {
		t.Fatal(err)
	}
	cl := classes.Class{ID: "c1", Name: "B"}
	clEv, _ := changefeed.NewEvent(changefeed.TableClasses, changefeed.Insert, cl.ID, cl, nil)
	events := []changefeed.Event{
		{Table: changefeed.TableAttendance, Type: changefeed.Update, ID: rec.ID},
		stEv,
		clEv,
		{Table: changefeed.TableAttendance, Type: changefeed.Delete, ID: "not-cached"},
	}

	for _, ev := range events {
		f.cache.Apply(ctx, ev)
	}
	once := f.cache.Snapshot()
	for _, ev := range events {
		f.cache.Apply(ctx, ev)
	}
	twice := f.cache.Snapshot()

	if !reflect.DeepEqual(once.Students, twice.Students) ||
		!reflect.DeepEqual(once.Classes, twice.Classes) ||
		!reflect.DeepEqual(once.Attendance, twice.Attendance) {
		t.Errorf("applying events twice changed state:\nonce  %+v\ntwice %+v", once, twice)
	}
	if len(twice.Attendance) != 1 || len(twice.Classes) != 1 || len(twice.Students) != 1 {
		t.Errorf("unexpected sizes: %+v", twice)
	}
}

func TestMerge_StudentChangesFollowIntoAttendance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	budi := f.addStudent(t, "Budi", "001", "A")
	f.addStudent(t, "Ani", "002", "A")
	f.mark(t, budi.ID, "2025-01-10", "Hadir", nil)
	f.cache.Load(ctx)

	moved, err := f.students.Update(ctx, budi.ID, students.UpdateStudentRequest{Name: "Budi", NIS: "001", ClassName: "B"})
	if err != nil {
		t.Fatal(err)
	}
	ev, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Update, moved.ID, moved, budi)
	f.cache.Apply(ctx, ev)

	snap := f.cache.Snapshot()
	if snap.Attendance[0].ClassName != "B" {
		t.Errorf("joined class = %q, want B", snap.Attendance[0].ClassName)
	}
	if got := ids(snap.Students, func(s students.Student) string { return s.Name }); !reflect.DeepEqual(got, []string{"Ani", "Budi"}) {
		t.Errorf("students order = %v", got)
	}

	del, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Delete, budi.ID, nil, moved)
	f.cache.Apply(ctx, del)
	snap = f.cache.Snapshot()
	if len(snap.Students) != 1 || len(snap.Attendance) != 0 {
		t.Errorf("after student delete: students=%d attendance=%d", len(snap.Students), len(snap.Attendance))
	}
}

func TestMerge_InvalidPayloadFallsBackToLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.cache.Load(ctx)
	f.addClass(t, "A") // published, but nobody is subscribed yet

	f.cache.Apply(ctx, changefeed.Event{Table: changefeed.TableClasses, Type: changefeed.Insert, ID: "x", New: json.RawMessage(`{"id":"x"}`)})
	snap := f.cache.Snapshot()
	if len(snap.Classes) != 1 || snap.Classes[0].Name != "A" {
		t.Errorf("classes = %+v, want reload from store", snap.Classes)
	}
}

func TestReloadPolicy_RerunsLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyReload)
	f.cache.Load(ctx)
	s := f.addStudent(t, "Budi", "001", "A")

	// payload is ignored under the reload policy
	f.cache.Apply(ctx, changefeed.Event{Table: changefeed.TableStudents, Type: changefeed.Insert, ID: s.ID})
	if snap := f.cache.Snapshot(); len(snap.Students) != 1 || snap.Students[0].ID != s.ID {
		t.Errorf("students = %+v", snap.Students)
	}
}

func TestScenario_MarkThenRemark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.cache.Load(ctx)
	if err := f.cache.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	f.addClass(t, "A")
	waitForCache(t, f.cache, "class A", func(s Snapshot) bool { return len(s.Classes) == 1 })

	budi := f.addStudent(t, "Budi", "001", "A")
	f.mark(t, budi.ID, "2025-01-10", "Present", nil)

	snap := waitForCache(t, f.cache, "first mark", func(s Snapshot) bool {
		return len(s.Students) == 1 && len(s.Attendance) == 1
	})
	if len(snap.Classes) != 1 || snap.Attendance[0].Status != attendance.StatusPresent {
		t.Fatalf("after first mark: %+v", snap)
	}

	fever := "fever"
	f.mark(t, budi.ID, "2025-01-10", "Sick", &fever)
	snap = waitForCache(t, f.cache, "re-mark", func(s Snapshot) bool {
		return len(s.Attendance) == 1 && s.Attendance[0].Status == attendance.StatusSick
	})
	got := snap.Attendance[0]
	if got.NoteText() != "fever" || got.StudentID != budi.ID || got.Date != "2025-01-10" {
		t.Errorf("record after re-mark = %+v", got)
	}

	if _, total, _ := f.store.ListAttendance(ctx, attendance.ListQuery{}); total != 1 {
		t.Errorf("store holds %d records for the pair, want 1", total)
	}
}

func TestScenario_DeleteClassKeepsStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.cache.Load(ctx)
	if err := f.cache.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	a := f.addClass(t, "A")
	f.addStudent(t, "Budi", "001", "A")
	f.addStudent(t, "Ani", "002", "A")
	waitForCache(t, f.cache, "roster", func(s Snapshot) bool { return len(s.Students) == 2 && len(s.Classes) == 1 })

	if err := f.classes.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	snap := waitForCache(t, f.cache, "class delete", func(s Snapshot) bool { return len(s.Classes) == 0 })
	if len(snap.Students) != 2 {
		t.Errorf("students = %d, want 2 after class delete", len(snap.Students))
	}
	for _, s := range snap.Students {
		if s.ClassName != "A" {
			t.Errorf("student %s class changed to %q", s.Name, s.ClassName)
		}
	}
}

func TestSubscribe_CloseStopsLoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	if err := f.cache.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.cache.Subscribe(ctx); err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.cache.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if err := f.cache.Subscribe(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close: got %v, want ErrClosed", err)
	}
	f.cache.Close()
}

func TestLaggedAndDrain(t *testing.T) {
	b := changefeed.NewBroker(1)
	sub := b.Subscribe(changefeed.TableStudents)
	defer sub.Close()
	b.Publish(changefeed.Event{Table: changefeed.TableStudents, ID: "1"})
	b.Publish(changefeed.Event{Table: changefeed.TableStudents, ID: "2"})

	subs := []*changefeed.Subscription{sub}
	if !lagged(subs) {
		t.Fatal("expected lag after overflow")
	}
	if lagged(subs) {
		t.Fatal("lag should reset once taken")
	}
	drain([]<-chan changefeed.Event{sub.C()})
	select {
	case ev := <-sub.C():
		t.Fatalf("drain left %+v", ev)
	default:
	}
}

func TestHandler_SnapshotAndSync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, PolicyMerge)
	f.addStudent(t, "Budi", "001", "A")

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), f.cache)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /snapshot = %d", w.Code)
	}
	var before Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &before); err != nil {
		t.Fatal(err)
	}
	if !before.Loading || len(before.Students) != 0 {
		t.Errorf("before sync: %+v", before)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	var after Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &after); err != nil {
		t.Fatal(err)
	}
	if after.Loading || len(after.Students) != 1 {
		t.Errorf("after sync: %+v", after)
	}
}

func TestWriteThrough_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.writeThrough()
	f.cache.Load(ctx)
	if err := f.cache.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	// no waiting: each call has returned, so the snapshot must already show it
	f.addClass(t, "TK A")
	budi := f.addStudent(t, "Budi", "001", "TK A")
	rec := f.mark(t, budi.ID, "2025-01-10", "Hadir", nil)

	snap := f.cache.Snapshot()
	if len(snap.Classes) != 1 || len(snap.Students) != 1 {
		t.Fatalf("roster right after write: classes=%d students=%d", len(snap.Classes), len(snap.Students))
	}
	if len(snap.Attendance) != 1 || snap.Attendance[0].ID != rec.ID || snap.Attendance[0].StudentName != "Budi" {
		t.Fatalf("attendance right after write = %+v", snap.Attendance)
	}

	fever := "fever"
	f.mark(t, budi.ID, "2025-01-10", "Sakit", &fever)
	if got := f.cache.Snapshot().Attendance; len(got) != 1 || got[0].Status != attendance.StatusSick || got[0].NoteText() != "fever" {
		t.Errorf("attendance right after re-mark = %+v", got)
	}

	if _, err := f.students.Update(ctx, budi.ID, students.UpdateStudentRequest{Name: "Budi Santoso", NIS: "001", ClassName: "TK A"}); err != nil {
		t.Fatal(err)
	}
	if got := f.cache.Snapshot().Attendance; got[0].StudentName != "Budi Santoso" {
		t.Errorf("joined name right after rename = %q", got[0].StudentName)
	}

	if err := f.att.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.cache.Snapshot().Attendance; len(got) != 0 {
		t.Errorf("attendance right after delete = %+v", got)
	}

	// the subscription copies arrive later and change nothing
	time.Sleep(50 * time.Millisecond)
	if got := f.cache.Snapshot(); len(got.Students) != 1 || got.Students[0].Name != "Budi Santoso" || len(got.Attendance) != 0 {
		t.Errorf("after feed delivery: %+v", got)
	}
}

func TestMerge_OlderEventDoesNotOverwriteNewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	budi := f.addStudent(t, "Budi", "001", "A")
	f.cache.Load(ctx)

	first := budi
	first.Name = "Budi S"
	second := budi
	second.Name = "Budi Santoso"
	older, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Update, budi.ID, first, budi)
	newer, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Update, budi.ID, second, first)
	newer.At = older.At.Add(time.Millisecond)

	f.cache.Apply(ctx, newer)
	f.cache.Apply(ctx, older)
	if got := f.cache.Snapshot().Students[0].Name; got != "Budi Santoso" {
		t.Errorf("name = %q, older event won", got)
	}

	gone, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Delete, budi.ID, nil, second)
	gone.At = newer.At.Add(time.Millisecond)
	f.cache.Apply(ctx, gone)
	f.cache.Apply(ctx, newer)
	if got := f.cache.Snapshot().Students; len(got) != 0 {
		t.Errorf("deleted student came back: %+v", got)
	}
}

func TestMerge_OrdersNamesIgnoringCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyMerge)
	f.addStudent(t, "Citra", "003", "A")
	f.addStudent(t, "Ani", "001", "A")
	f.cache.Load(ctx)

	budi := students.Student{ID: "s-budi", Name: "budi", NIS: "002", ClassName: "A", Status: true}
	ev, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Insert, budi.ID, budi, nil)
	f.cache.Apply(ctx, ev)

	got := ids(f.cache.Snapshot().Students, func(s students.Student) string { return s.Name })
	if !reflect.DeepEqual(got, []string{"Ani", "budi", "Citra"}) {
		t.Errorf("merged order = %v", got)
	}

	if _, err := f.students.Create(ctx, students.CreateStudentRequest{Name: "budi", NIS: "002", ClassName: "A"}); err != nil {
		t.Fatal(err)
	}
	f.cache.Load(ctx)
	got = ids(f.cache.Snapshot().Students, func(s students.Student) string { return s.Name })
	if !reflect.DeepEqual(got, []string{"Ani", "budi", "Citra"}) {
		t.Errorf("loaded order = %v", got)
	}
}

func TestSubscribe_OverflowReloadsFromStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	broker := changefeed.NewBroker(1)
	cache := New(NewRepoSource(store, store, store), broker, Options{RosterPolicy: PolicyMerge})
	t.Cleanup(func() {
		cache.Close()
		broker.Close()
	})
	cache.Load(ctx)
	if err := cache.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	// hold the cache so the event loop cannot keep up
	cache.mu.Lock()
	for i, name := range []string{"Ani", "Budi", "Citra", "Dewi"} {
		st := students.Student{Name: name, NIS: fmt.Sprintf("00%d", i+1), ClassName: "A", Status: true}
		if err := store.InsertStudent(ctx, &st); err != nil {
			cache.mu.Unlock()
			t.Fatal(err)
		}
		ev, _ := changefeed.NewEvent(changefeed.TableStudents, changefeed.Insert, st.ID, st, nil)
		broker.Publish(ev)
	}
	cache.mu.Unlock()

	want, _ := store.ListStudents(ctx, students.Filter{})
	snap := waitForCache(t, cache, "reload after overflow", func(s Snapshot) bool { return len(s.Students) == len(want) })
	if !reflect.DeepEqual(snap.Students, want) {
		t.Errorf("students = %+v, want %+v", snap.Students, want)
	}
}
