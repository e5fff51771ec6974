package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/platform/db"
	"absensi-backend/internal/students"
)

// ===== Error model (classes/students と同型) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// MsgIncomplete is shown when a class sheet is saved with unmarked students.
const MsgIncomplete = "every student must be given an attendance status"

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Roster は出欠シート保存時にクラスの在籍生徒を引く。
type Roster interface {
	ListStudents(ctx context.Context, f students.Filter) ([]students.Student, error)
}

// ===== Service =====

type Service struct {
	repo   Repository
	roster Roster
	feed   changefeed.Publisher
	clock  Clock
	loc    *time.Location
}

func NewService(repo Repository, roster Roster, feed changefeed.Publisher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, roster: roster, feed: feed, clock: realClock{}, loc: loc}
}

// Today は学校のタイムゾーンでの今日（YYYY-MM-DD）。
func (s *Service) Today() string {
	return s.clock.Now().In(s.loc).Format(DateLayout)
}

// POST /attendance
func (s *Service) Upsert(ctx context.Context, in []EntryRequest) (UpsertResponse, error) {
	if len(in) == 0 {
		return UpsertResponse{}, ErrInvalid("records must not be empty")
	}
	entries := make([]Entry, 0, len(in))
	for i, r := range in {
		e, err := s.toEntry(r.StudentID, r.Date, r.Status, r.Note)
		if err != nil {
			return UpsertResponse{}, ErrInvalid(fmt.Sprintf("records[%d]: %s", i, err.Error()))
		}
		entries = append(entries, e)
	}
	return s.write(ctx, dedupe(entries))
}

// POST /attendance/sheet: クラスの在籍生徒全員に出欠が付いていないと保存しない。
func (s *Service) SaveSheet(ctx context.Context, in SheetRequest) (UpsertResponse, error) {
	className := strings.TrimSpace(in.ClassName)
	if className == "" {
		return UpsertResponse{}, ErrInvalid("class_name is required")
	}
	date, err := s.parseDate(in.Date)
	if err != nil {
		return UpsertResponse{}, ErrInvalid("date must be YYYY-MM-DD or 'today'")
	}

	roster, err := s.roster.ListStudents(ctx, students.Filter{ClassName: className, ActiveOnly: true})
	if err != nil {
		log.Printf("[ERROR] attendance: load roster of %s: %v", className, err)
		return UpsertResponse{}, ErrInternal("failed to load class roster")
	}
	if len(roster) == 0 {
		return UpsertResponse{Items: []Record{}}, nil
	}

	inClass := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		inClass[st.ID] = struct{}{}
	}
	marked := make(map[string]Entry, len(in.Entries))
	for _, se := range in.Entries {
		if _, ok := inClass[se.StudentID]; !ok {
			return UpsertResponse{}, ErrInvalid(fmt.Sprintf("student %s is not an active member of %s", se.StudentID, className))
		}
		if strings.TrimSpace(se.Status) == "" {
			continue
		}
		e, err := s.toEntry(se.StudentID, date, se.Status, se.Note)
		if err != nil {
			return UpsertResponse{}, ErrInvalid(err.Error())
		}
		marked[se.StudentID] = e
	}

	entries := make([]Entry, 0, len(roster))
	for _, st := range roster {
		e, ok := marked[st.ID]
		if !ok {
			return UpsertResponse{}, ErrInvalid(MsgIncomplete)
		}
		entries = append(entries, e)
	}
	return s.write(ctx, entries)
}

func (s *Service) write(ctx context.Context, entries []Entry) (UpsertResponse, error) {
	results, err := s.repo.UpsertAttendance(ctx, entries)
	if err != nil {
		return UpsertResponse{}, mapStoreErr(err)
	}
	resp := UpsertResponse{Items: make([]Record, 0, len(results))}
	for _, r := range results {
		resp.Items = append(resp.Items, r.Record)
		typ := changefeed.Update
		if r.Created {
			typ = changefeed.Insert
			resp.Created++
		} else {
			resp.Updated++
		}
		rec := r.Record
		s.publish(typ, rec.ID, &rec, nil)
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	rec, err := s.repo.GetAttendance(ctx, id)
	if err != nil {
		return Record{}, mapStoreErr(err)
	}
	return rec, nil
}

// GET /attendance
func (s *Service) List(ctx context.Context, q ListQuery) (ListResponse, error) {
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	for _, p := range []**string{&q.On, &q.From, &q.To} {
		if *p == nil || **p == "" {
			continue
		}
		d, err := s.parseDate(**p)
		if err != nil {
			return ListResponse{}, ErrInvalid("dates must be YYYY-MM-DD or 'today'")
		}
		*p = &d
	}

	items, total, err := s.repo.ListAttendance(ctx, q)
	if err != nil {
		return ListResponse{}, mapStoreErr(err)
	}
	next := q.Offset + q.Limit
	if int64(next) >= total {
		next = 0
	}
	return ListResponse{Items: items, Total: total, NextOffset: next}, nil
}

// DELETE /attendance/:id
func (s *Service) Delete(ctx context.Context, id string) error {
	old, err := s.repo.GetAttendance(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := s.repo.DeleteAttendance(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.publish(changefeed.Delete, id, nil, &old)
	return nil
}

// GET /attendance/stats: 期間省略時は今月
func (s *Service) Stats(ctx context.Context, from, to string) (StatsResponse, error) {
	now := s.clock.Now().In(s.loc)
	if from == "" {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc).Format(DateLayout)
	}
	if to == "" {
		to = time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, s.loc).Format(DateLayout)
	}
	f, err := s.parseDate(from)
	if err != nil {
		return StatsResponse{}, ErrInvalid("from must be YYYY-MM-DD")
	}
	t, err := s.parseDate(to)
	if err != nil {
		return StatsResponse{}, ErrInvalid("to must be YYYY-MM-DD")
	}
	if t < f {
		return StatsResponse{}, ErrInvalid("to must be >= from")
	}

	counts, err := s.repo.CountAttendance(ctx, f, t)
	if err != nil {
		return StatsResponse{}, mapStoreErr(err)
	}
	resp := StatsResponse{
		From:       f,
		To:         t,
		Present:    counts[StatusPresent],
		Sick:       counts[StatusSick],
		Permission: counts[StatusPermission],
		Absent:     counts[StatusAbsent],
	}
	resp.Total = resp.Present + resp.Sick + resp.Permission + resp.Absent
	return resp, nil
}

func (s *Service) toEntry(studentID, date, status string, note *string) (Entry, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return Entry{}, errors.New("student_id is required")
	}
	d, err := s.parseDate(date)
	if err != nil {
		return Entry{}, errors.New("date must be YYYY-MM-DD or 'today'")
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{StudentID: studentID, Date: d, Status: st}
	if st.KeepsNote() && note != nil {
		if v := strings.TrimSpace(*note); v != "" {
			e.Note = &v
		}
	}
	return e, nil
}

// parseDate: 空 or "today" は学校タイムゾーンの今日
func (s *Service) parseDate(v string) (string, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" || v == "today" {
		return s.Today(), nil
	}
	t, err := time.ParseInLocation(DateLayout, v, s.loc)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// 同一バッチ内の (student_id, date) 重複は後勝ち
func dedupe(entries []Entry) []Entry {
	type key struct{ student, date string }
	pos := make(map[key]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := key{e.StudentID, e.Date}
		if i, ok := pos[k]; ok {
			out[i] = e
			continue
		}
		pos[k] = len(out)
		out = append(out, e)
	}
	return out
}

func (s *Service) publish(typ changefeed.EventType, id string, newRow, oldRow *Record) {
	if s.feed == nil {
		return
	}
	var n, o any
	if newRow != nil {
		n = newRow
	}
	if oldRow != nil {
		o = oldRow
	}
	ev, err := changefeed.NewEvent(changefeed.TableAttendance, typ, id, n, o)
	if err != nil {
		log.Printf("[ERROR] attendance: build change event: %v", err)
		return
	}
	s.feed.Publish(ev)
}

func mapStoreErr(err error) error {
	var api *APIError
	switch {
	case errors.As(err, &api):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound("attendance record not found")
	case db.IsForeignKeyViolation(err):
		return ErrInvalid("unknown student")
	case db.IsDuplicateKey(err):
		return ErrConflict("attendance for this student and date already exists")
	default:
		log.Printf("[ERROR] attendance: %v", err)
		return ErrInternal("failed to access attendance")
	}
}
