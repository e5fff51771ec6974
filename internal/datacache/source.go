package datacache

import (
	"context"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/students"
)

// Source is the read side of the store as the cache sees it.
type Source interface {
	Students(ctx context.Context) ([]students.Student, error)
	Classes(ctx context.Context) ([]classes.Class, error)
	Attendance(ctx context.Context) ([]attendance.Record, error)
	AttendanceByID(ctx context.Context, id string) (attendance.Record, error)
}

// RepoSource reads through the table repositories (MySQL or memstore).
type RepoSource struct {
	students   students.Repository
	classes    classes.Repository
	attendance attendance.Repository
}

func NewRepoSource(st students.Repository, cl classes.Repository, at attendance.Repository) *RepoSource {
	return &RepoSource{students: st, classes: cl, attendance: at}
}

// 名前順
func (s *RepoSource) Students(ctx context.Context) ([]students.Student, error) {
	return s.students.ListStudents(ctx, students.Filter{})
}

// 名前順
func (s *RepoSource) Classes(ctx context.Context) ([]classes.Class, error) {
	return s.classes.ListClasses(ctx)
}

// 生徒と結合済み、全件（Limit 0）
func (s *RepoSource) Attendance(ctx context.Context) ([]attendance.Record, error) {
	out, _, err := s.attendance.ListAttendance(ctx, attendance.ListQuery{Sort: attendance.SortDateDesc})
	return out, err
}

func (s *RepoSource) AttendanceByID(ctx context.Context, id string) (attendance.Record, error) {
	return s.attendance.GetAttendance(ctx, id)
}
