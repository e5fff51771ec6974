// Package datacache mirrors the students, classes and attendance tables in
// memory. It is filled by Load, kept current by the change feed and read
// through Snapshot. Writes go to the store; WriteThrough mirrors this
// process's own writes into the cache before they are published.
package datacache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/students"
)

type RosterPolicy string

const (
	// PolicyMerge applies student/class events row by row.
	PolicyMerge RosterPolicy = "merge"
	// PolicyReload re-runs Load on every student/class event.
	PolicyReload RosterPolicy = "reload"
)

type Options struct {
	RosterPolicy RosterPolicy
}

// ParsePolicy falls back to PolicyMerge for unknown values.
func ParsePolicy(v string) RosterPolicy {
	if RosterPolicy(v) == PolicyReload {
		return PolicyReload
	}
	return PolicyMerge
}

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Students   []students.Student  `json:"students"`
	Classes    []classes.Class     `json:"classes"`
	Attendance []attendance.Record `json:"attendance"`
	Loading    bool                `json:"loading"`
	Failed     []changefeed.Table  `json:"failed,omitempty"` // 直近の Load で取得に失敗したコレクション
	Version    uint64              `json:"version"`
	LoadedAt   time.Time           `json:"loaded_at"`
}

var ErrClosed = errors.New("datacache: closed")

type Cache struct {
	src    Source
	feed   changefeed.Subscriber
	policy RosterPolicy

	mu         sync.RWMutex
	students   []students.Student
	classes    []classes.Class
	attendance []attendance.Record
	loading    bool
	failed     []changefeed.Table
	version    uint64
	loadedAt   time.Time
	applied    map[string]time.Time // 行ごとに最後に反映したイベントの時刻

	loadMu sync.Mutex // Load 同士は直列

	subMu  sync.Mutex
	subs   []*changefeed.Subscription
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func New(src Source, feed changefeed.Subscriber, opts Options) *Cache {
	policy := opts.RosterPolicy
	if policy == "" {
		policy = PolicyMerge
	}
	return &Cache{
		src:        src,
		feed:       feed,
		policy:     policy,
		students:   []students.Student{},
		classes:    []classes.Class{},
		attendance: []attendance.Record{},
		applied:    make(map[string]time.Time),
		loading:    true,
		stop:       make(chan struct{}),
	}
}

// Load fetches the three collections in parallel and replaces the cached
// ones once all three have settled. A failed fetch is logged and leaves its
// collection empty; the others are still applied.
func (c *Cache) Load(ctx context.Context) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	var (
		wg  sync.WaitGroup
		st  []students.Student
		cl  []classes.Class
		at  []attendance.Record
		fst error
		fcl error
		fat error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		st, fst = c.src.Students(ctx)
	}()
	go func() {
		defer wg.Done()
		cl, fcl = c.src.Classes(ctx)
	}()
	go func() {
		defer wg.Done()
		at, fat = c.src.Attendance(ctx)
	}()
	wg.Wait()

	var failed []changefeed.Table
	if fst != nil {
		log.Printf("[WARN] datacache: load students: %v", fst)
		failed = append(failed, changefeed.TableStudents)
	}
	if fcl != nil {
		log.Printf("[WARN] datacache: load classes: %v", fcl)
		failed = append(failed, changefeed.TableClasses)
	}
	if fat != nil {
		log.Printf("[WARN] datacache: load attendance: %v", fat)
		failed = append(failed, changefeed.TableAttendance)
	}

	st = validRows(st, fst, changefeed.TableStudents)
	cl = validRows(cl, fcl, changefeed.TableClasses)
	at = validRows(at, fat, changefeed.TableAttendance)

	c.mu.Lock()
	c.students, c.classes, c.attendance = st, cl, at
	c.failed = failed
	c.loading = false
	c.loadedAt = time.Now().UTC()
	c.version++
	c.mu.Unlock()
}

// Refresh re-runs Load so the next read matches the store without waiting
// for change notifications (POST /sync).
func (c *Cache) Refresh(ctx context.Context) { c.Load(ctx) }

// WriteThrough wraps next so every event published by this process is
// applied to the cache before it is handed on. A service call that returns
// has therefore already updated Snapshot; the copy that comes back through
// the subscription is a no-op.
func (c *Cache) WriteThrough(next changefeed.Publisher) changefeed.Publisher {
	return &writeThrough{cache: c, next: next}
}

type writeThrough struct {
	cache *Cache
	next  changefeed.Publisher
}

func (w *writeThrough) Publish(ev changefeed.Event) {
	w.cache.Apply(context.Background(), ev)
	if w.next != nil {
		w.next.Publish(ev)
	}
}

// Subscribe opens one subscription per table and applies events on a single
// goroutine until ctx ends or Close is called. Calling it again is a no-op.
func (c *Cache) Subscribe(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.done != nil {
		return nil
	}
	c.subs = []*changefeed.Subscription{
		c.feed.Subscribe(changefeed.TableStudents),
		c.feed.Subscribe(changefeed.TableClasses),
		c.feed.Subscribe(changefeed.TableAttendance),
	}
	c.done = make(chan struct{})
	go c.run(ctx, c.subs)
	return nil
}

// Close unsubscribes and waits for the event loop to exit.
func (c *Cache) Close() {
	c.subMu.Lock()
	if c.closed {
		c.subMu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	for _, s := range c.subs {
		s.Close()
	}
	done := c.done
	c.subMu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *Cache) run(ctx context.Context, subs []*changefeed.Subscription) {
	defer close(c.done)
	chs := make([]<-chan changefeed.Event, len(subs))
	for i, s := range subs {
		chs[i] = s.C()
	}
	open := len(chs)

	for open > 0 {
		var (
			ev changefeed.Event
			ok bool
			i  int
		)
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case ev, ok = <-chs[0]:
			i = 0
		case ev, ok = <-chs[1]:
			i = 1
		case ev, ok = <-chs[2]:
			i = 2
		}
		if !ok {
			chs[i] = nil
			open--
			continue
		}

		if lagged(subs) {
			// 取りこぼしがあれば溜まっている古いイベントを捨てて全件ロード
			log.Printf("[WARN] datacache: change feed overflowed, reloading")
			drain(chs)
			c.Load(ctx)
			continue
		}
		c.Apply(ctx, ev)
	}
}

func lagged(subs []*changefeed.Subscription) bool {
	var n int64
	for _, s := range subs {
		n += s.TakeDropped()
	}
	return n > 0
}

func drain(chs []<-chan changefeed.Event) {
	for _, ch := range chs {
		if ch == nil {
			continue
		}
	loop:
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					break loop
				}
			default:
				break loop
			}
		}
	}
}

// Apply reconciles one change event. Applying the same event twice leaves
// the same state as applying it once.
func (c *Cache) Apply(ctx context.Context, ev changefeed.Event) {
	switch ev.Table {
	case changefeed.TableAttendance:
		c.applyAttendance(ctx, ev)
	case changefeed.TableStudents, changefeed.TableClasses:
		if c.policy == PolicyReload {
			c.Load(ctx)
			return
		}
		if err := c.mergeRoster(ev); err != nil {
			log.Printf("[WARN] datacache: %s %s %s: %v, reloading", ev.Table, ev.Type, ev.ID, err)
			c.Load(ctx)
		}
	default:
		log.Printf("[WARN] datacache: ignoring event for unknown table %q", ev.Table)
	}
}

// 表示には生徒との結合が必要なので、該当1件だけ取り直して id で差し替える。
func (c *Cache) applyAttendance(ctx context.Context, ev changefeed.Event) {
	id := ev.ID
	if id == "" {
		var old attendance.Record
		if err := decodeRow(ev.Old, &old); err == nil {
			id = old.ID
		}
	}
	if id == "" {
		log.Printf("[WARN] datacache: attendance %s without id", ev.Type)
		return
	}

	if ev.Type == changefeed.Delete {
		c.removeAttendance(id)
		return
	}

	rec, err := c.src.AttendanceByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.removeAttendance(id)
		return
	case err != nil:
		log.Printf("[WARN] datacache: refetch attendance %s: %v", id, err)
		// 取り直せなければイベントの行で代用
		if derr := decodeRow(ev.New, &rec); derr != nil || rec.Validate() != nil {
			return
		}
	}
	if err := rec.Validate(); err != nil {
		log.Printf("[WARN] datacache: refetched attendance %s: %v", id, err)
		return
	}
	c.putAttendance(rec)
}

func (c *Cache) mergeRoster(ev changefeed.Event) error {
	switch ev.Table {
	case changefeed.TableStudents:
		if ev.Type == changefeed.Delete {
			id, err := deletedID(ev, func(b json.RawMessage) (string, error) {
				var s students.Student
				err := decodeRow(b, &s)
				return s.ID, err
			})
			if err != nil {
				return err
			}
			c.removeStudent(id, ev.At)
			return nil
		}
		var s students.Student
		if err := decodeRow(ev.New, &s); err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}
		c.putStudent(s, ev.At)
		return nil

	case changefeed.TableClasses:
		if ev.Type == changefeed.Delete {
			id, err := deletedID(ev, func(b json.RawMessage) (string, error) {
				var cl classes.Class
				err := decodeRow(b, &cl)
				return cl.ID, err
			})
			if err != nil {
				return err
			}
			c.removeClass(id, ev.At)
			return nil
		}
		var cl classes.Class
		if err := decodeRow(ev.New, &cl); err != nil {
			return err
		}
		if err := cl.Validate(); err != nil {
			return err
		}
		c.putClass(cl, ev.At)
		return nil
	}
	return fmt.Errorf("unexpected table %q", ev.Table)
}

func deletedID(ev changefeed.Event, fromOld func(json.RawMessage) (string, error)) (string, error) {
	if ev.ID != "" {
		return ev.ID, nil
	}
	id, err := fromOld(ev.Old)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("delete without id")
	}
	return id, nil
}

func decodeRow(b json.RawMessage, dst any) error {
	if len(b) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(b, dst)
}

// ===== mutations (all under mu) =====

// fresh reports whether an event stamped at is not older than the last one
// applied to the same row, and records it. Caller holds mu.
func (c *Cache) fresh(table changefeed.Table, id string, at time.Time) bool {
	if at.IsZero() {
		return true
	}
	key := string(table) + ":" + id
	if last, ok := c.applied[key]; ok && at.Before(last) {
		return false
	}
	c.applied[key] = at
	return true
}

func (c *Cache) putStudent(s students.Student, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh(changefeed.TableStudents, s.ID, at) {
		return
	}
	c.students = upsertByID(c.students, s, func(x students.Student) string { return x.ID })
	sortByName(c.students, func(x students.Student) (string, string) { return x.Name, x.ID })

	// 結合済みの表示項目を追従させる
	for i := range c.attendance {
		if c.attendance[i].StudentID == s.ID {
			c.attendance[i].StudentName = s.Name
			c.attendance[i].NIS = s.NIS
			c.attendance[i].ClassName = s.ClassName
		}
	}
	c.version++
}

// removeStudent also drops the student's attendance (ON DELETE CASCADE).
func (c *Cache) removeStudent(id string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh(changefeed.TableStudents, id, at) {
		return
	}
	c.students = removeByID(c.students, id, func(x students.Student) string { return x.ID })
	kept := c.attendance[:0:0]
	for _, r := range c.attendance {
		if r.StudentID != id {
			kept = append(kept, r)
		}
	}
	c.attendance = kept
	c.version++
}

func (c *Cache) putClass(cl classes.Class, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh(changefeed.TableClasses, cl.ID, at) {
		return
	}
	c.classes = upsertByID(c.classes, cl, func(x classes.Class) string { return x.ID })
	sortByName(c.classes, func(x classes.Class) (string, string) { return x.Name, x.ID })
	c.version++
}

func (c *Cache) removeClass(id string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh(changefeed.TableClasses, id, at) {
		return
	}
	c.classes = removeByID(c.classes, id, func(x classes.Class) string { return x.ID })
	c.version++
}

func (c *Cache) putAttendance(r attendance.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attendance = upsertByID(c.attendance, r, func(x attendance.Record) string { return x.ID })
	c.version++
}

func (c *Cache) removeAttendance(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attendance = removeByID(c.attendance, id, func(x attendance.Record) string { return x.ID })
	c.version++
}

// ===== reads =====

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Students:   clone(c.students),
		Classes:    clone(c.classes),
		Attendance: clone(c.attendance),
		Loading:    c.loading,
		Failed:     append([]changefeed.Table(nil), c.failed...),
		Version:    c.version,
		LoadedAt:   c.loadedAt,
	}
}

// Loading is true until the first Load settles and while a Load runs.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// ===== helpers =====

// clone never returns nil so empty collections encode as [].
func clone[T any](rows []T) []T {
	out := make([]T, len(rows))
	copy(out, rows)
	return out
}

type validator interface{ Validate() error }

// validRows drops rows that fail validation; a failed fetch yields an empty
// collection.
func validRows[T validator](rows []T, fetchErr error, table changefeed.Table) []T {
	out := make([]T, 0, len(rows))
	if fetchErr != nil {
		return out
	}
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			log.Printf("[WARN] datacache: skipping %s row: %v", table, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func upsertByID[T any](rows []T, v T, id func(T) string) []T {
	key := id(v)
	for i := range rows {
		if id(rows[i]) == key {
			out := append([]T(nil), rows...)
			out[i] = v
			return out
		}
	}
	out := make([]T, 0, len(rows)+1)
	out = append(out, rows...)
	return append(out, v)
}

func removeByID[T any](rows []T, key string, id func(T) string) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if id(r) != key {
			out = append(out, r)
		}
	}
	return out
}

func sortByName[T any](rows []T, key func(T) (string, string)) {
	sort.SliceStable(rows, func(i, j int) bool {
		ni, ii := key(rows[i])
		nj, ij := key(rows[j])
		// MySQL の _ci 照合順序に合わせて大文字小文字を無視
		if li, lj := strings.ToLower(ni), strings.ToLower(nj); li != lj {
			return li < lj
		}
		return ii < ij
	})
}
