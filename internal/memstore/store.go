// Package memstore is an in-memory stand-in for the MySQL tables. It keeps the
// same uniqueness and foreign key rules and reports violations with the same
// driver errors, so services map them identically.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/platform/db"
	"absensi-backend/internal/students"
)

var (
	_ classes.Repository    = (*Store)(nil)
	_ students.Repository   = (*Store)(nil)
	_ attendance.Repository = (*Store)(nil)
)

type attendanceRow struct {
	ID        string
	StudentID string
	Date      string
	Status    attendance.Status
	Note      *string
	CreatedAt time.Time
}

type Store struct {
	mu         sync.RWMutex
	classes    map[string]classes.Class
	students   map[string]students.Student
	attendance map[string]attendanceRow
	fail       map[string]error
	now        func() time.Time
}

func New() *Store {
	return &Store{
		classes:    make(map[string]classes.Class),
		students:   make(map[string]students.Student),
		attendance: make(map[string]attendanceRow),
		fail:       make(map[string]error),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// FailOn makes every call of the named method (e.g. "ListStudents") return
// err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

func (s *Store) failure(method string) error { return s.fail[method] }

func duplicate(key, value string) error {
	return &mysql.MySQLError{Number: 1062, Message: fmt.Sprintf("Duplicate entry '%s' for key '%s'", value, key)}
}

func noReferenced(table string) error {
	return &mysql.MySQLError{Number: 1452, Message: fmt.Sprintf("Cannot add or update a child row: a foreign key constraint fails (%s)", table)}
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ===== classes =====

func (s *Store) ListClasses(ctx context.Context) ([]classes.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListClasses"); err != nil {
		return nil, err
	}
	out := make([]classes.Class, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, cloneClass(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name); ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetClass(ctx context.Context, id string) (classes.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetClass"); err != nil {
		return classes.Class{}, err
	}
	c, ok := s.classes[id]
	if !ok {
		return classes.Class{}, sql.ErrNoRows
	}
	return cloneClass(c), nil
}

func (s *Store) InsertClass(ctx context.Context, c *classes.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertClass"); err != nil {
		return err
	}
	if s.classNameTaken(c.Name, "") {
		return duplicate("classes.name", c.Name)
	}
	c.ID = db.NewID()
	c.CreatedAt = s.now()
	s.classes[c.ID] = cloneClass(*c)
	return nil
}

func (s *Store) UpdateClass(ctx context.Context, c classes.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateClass"); err != nil {
		return err
	}
	old, ok := s.classes[c.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if s.classNameTaken(c.Name, c.ID) {
		return duplicate("classes.name", c.Name)
	}
	c.CreatedAt = old.CreatedAt
	s.classes[c.ID] = cloneClass(c)
	return nil
}

// DeleteClass leaves students alone; class_name is only a string key.
func (s *Store) DeleteClass(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteClass"); err != nil {
		return err
	}
	if _, ok := s.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.classes, id)
	return nil
}

func (s *Store) classNameTaken(name, exceptID string) bool {
	for id, c := range s.classes {
		if id != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func cloneClass(c classes.Class) classes.Class {
	c.TeacherName = copyStr(c.TeacherName)
	c.TeacherNIP = copyStr(c.TeacherNIP)
	c.HeadmasterName = copyStr(c.HeadmasterName)
	c.HeadmasterNIP = copyStr(c.HeadmasterNIP)
	return c
}

// ===== students =====

func (s *Store) ListStudents(ctx context.Context, f students.Filter) ([]students.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListStudents"); err != nil {
		return nil, err
	}
	out := make([]students.Student, 0, len(s.students))
	for _, st := range s.students {
		if f.Match(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name); ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (students.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetStudent"); err != nil {
		return students.Student{}, err
	}
	st, ok := s.students[id]
	if !ok {
		return students.Student{}, sql.ErrNoRows
	}
	return st, nil
}

func (s *Store) InsertStudent(ctx context.Context, st *students.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertStudent"); err != nil {
		return err
	}
	if s.nisTaken(st.NIS, "") {
		return duplicate("students.nis", st.NIS)
	}
	st.ID = db.NewID()
	st.CreatedAt = s.now()
	s.students[st.ID] = *st
	return nil
}

func (s *Store) UpdateStudent(ctx context.Context, st students.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateStudent"); err != nil {
		return err
	}
	old, ok := s.students[st.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if s.nisTaken(st.NIS, st.ID) {
		return duplicate("students.nis", st.NIS)
	}
	st.CreatedAt = old.CreatedAt
	s.students[st.ID] = st
	return nil
}

// DeleteStudent cascades to the student's attendance rows.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteStudent"); err != nil {
		return err
	}
	if _, ok := s.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.students, id)
	for aid, a := range s.attendance {
		if a.StudentID == id {
			delete(s.attendance, aid)
		}
	}
	return nil
}

func (s *Store) nisTaken(nis, exceptID string) bool {
	for id, st := range s.students {
		if id != exceptID && st.NIS == nis {
			return true
		}
	}
	return false
}

// ===== attendance =====

// UpsertAttendance applies all entries or none.
func (s *Store) UpsertAttendance(ctx context.Context, entries []attendance.Entry) ([]attendance.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpsertAttendance"); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, ok := s.students[e.StudentID]; !ok {
			return nil, noReferenced("attendance.student_id")
		}
	}

	out := make([]attendance.UpsertResult, 0, len(entries))
	for _, e := range entries {
		row, created := s.findAttendance(e.StudentID, e.Date), false
		if row == nil {
			row = &attendanceRow{ID: db.NewID(), StudentID: e.StudentID, Date: e.Date, CreatedAt: s.now()}
			created = true
		}
		row.Status = e.Status
		row.Note = copyStr(e.Note)
		s.attendance[row.ID] = *row
		out = append(out, attendance.UpsertResult{Record: s.join(*row), Created: created})
	}
	return out, nil
}

func (s *Store) GetAttendance(ctx context.Context, id string) (attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetAttendance"); err != nil {
		return attendance.Record{}, err
	}
	row, ok := s.attendance[id]
	if !ok {
		return attendance.Record{}, sql.ErrNoRows
	}
	return s.join(row), nil
}

func (s *Store) ListAttendance(ctx context.Context, q attendance.ListQuery) ([]attendance.Record, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("ListAttendance"); err != nil {
		return nil, 0, err
	}
	out := make([]attendance.Record, 0, len(s.attendance))
	for _, row := range s.attendance {
		rec := s.join(row)
		if matchQuery(q, rec) {
			out = append(out, rec)
		}
	}
	sortRecords(out, q.Sort)

	total := int64(len(out))
	if q.Limit > 0 {
		lo := min(q.Offset, len(out))
		hi := min(lo+q.Limit, len(out))
		out = out[lo:hi]
	}
	return out, total, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteAttendance"); err != nil {
		return err
	}
	if _, ok := s.attendance[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.attendance, id)
	return nil
}

func (s *Store) CountAttendance(ctx context.Context, from, to string) (map[attendance.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("CountAttendance"); err != nil {
		return nil, err
	}
	out := make(map[attendance.Status]int64, len(attendance.Statuses))
	for _, row := range s.attendance {
		if row.Date >= from && row.Date <= to {
			out[row.Status]++
		}
	}
	return out, nil
}

func (s *Store) findAttendance(studentID, date string) *attendanceRow {
	for _, row := range s.attendance {
		if row.StudentID == studentID && row.Date == date {
			r := row
			return &r
		}
	}
	return nil
}

// join は SELECT ... JOIN students と同じ表示形を作る。
func (s *Store) join(row attendanceRow) attendance.Record {
	st := s.students[row.StudentID]
	return attendance.Record{
		ID:          row.ID,
		StudentID:   row.StudentID,
		StudentName: st.Name,
		NIS:         st.NIS,
		ClassName:   st.ClassName,
		Status:      row.Status,
		Note:        copyStr(row.Note),
		Date:        row.Date,
		CreatedAt:   row.CreatedAt,
	}
}

func matchQuery(q attendance.ListQuery, r attendance.Record) bool {
	if q.StudentID != nil && *q.StudentID != "" && r.StudentID != *q.StudentID {
		return false
	}
	if q.ClassName != nil && *q.ClassName != "" && r.ClassName != *q.ClassName {
		return false
	}
	if q.Status != nil && *q.Status != "" && r.Status != *q.Status {
		return false
	}
	if q.On != nil && *q.On != "" {
		return r.Date == *q.On
	}
	if q.From != nil && *q.From != "" && r.Date < *q.From {
		return false
	}
	if q.To != nil && *q.To != "" && r.Date > *q.To {
		return false
	}
	return true
}

func sortRecords(out []attendance.Record, mode string) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch mode {
		case attendance.SortDateAsc:
			if a.Date != b.Date {
				return a.Date < b.Date
			}
		case attendance.SortStudentName:
			if a.StudentName != b.StudentName {
				return a.StudentName < b.StudentName
			}
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.ID < b.ID
		default:
			if a.Date != b.Date {
				return a.Date > b.Date
			}
		}
		if c := strings.Compare(a.StudentName, b.StudentName); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}
