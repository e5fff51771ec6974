package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/platform/db"
)

// ===== Error model (classes/attendance と同型) =====
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

// MsgDuplicateNIS is shown to the user as-is.
const MsgDuplicateNIS = "NIS already registered"

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

// ===== Service =====

type Service struct {
	repo Repository
	feed changefeed.Publisher
}

func NewService(repo Repository, feed changefeed.Publisher) *Service {
	return &Service{repo: repo, feed: feed}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Student, error) {
	out, err := s.repo.ListStudents(ctx, f)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Student, error) {
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, mapStoreErr(err)
	}
	return st, nil
}

// POST /students: 新規は常に active
func (s *Service) Create(ctx context.Context, in CreateStudentRequest) (Student, error) {
	st, err := normalize(in.Name, in.NIS, in.ClassName)
	if err != nil {
		return Student{}, err
	}
	st.Status = true
	if err := s.repo.InsertStudent(ctx, &st); err != nil {
		return Student{}, mapStoreErr(err)
	}
	s.publish(changefeed.Insert, st.ID, &st, nil)
	return st, nil
}

// PUT /students/:id
func (s *Service) Update(ctx context.Context, id string, in UpdateStudentRequest) (Student, error) {
	st, err := normalize(in.Name, in.NIS, in.ClassName)
	if err != nil {
		return Student{}, err
	}
	old, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, mapStoreErr(err)
	}
	st.ID = old.ID
	st.CreatedAt = old.CreatedAt
	st.Status = old.Status
	if in.Status != nil {
		st.Status = *in.Status
	}
	if err := s.repo.UpdateStudent(ctx, st); err != nil {
		return Student{}, mapStoreErr(err)
	}
	s.publish(changefeed.Update, st.ID, &st, &old)
	return st, nil
}

// DELETE /students/:id
func (s *Service) Delete(ctx context.Context, id string) error {
	old, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.publish(changefeed.Delete, id, nil, &old)
	return nil
}

func (s *Service) publish(typ changefeed.EventType, id string, newRow, oldRow *Student) {
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
	ev, err := changefeed.NewEvent(changefeed.TableStudents, typ, id, n, o)
	if err != nil {
		log.Printf("[ERROR] students: build change event: %v", err)
		return
	}
	s.feed.Publish(ev)
}

func normalize(name, nis, className string) (Student, error) {
	st := Student{
		Name:      strings.Join(strings.Fields(name), " "),
		NIS:       strings.TrimSpace(nis),
		ClassName: strings.TrimSpace(className),
	}
	if st.Name == "" || st.NIS == "" || st.ClassName == "" {
		return Student{}, ErrInvalid("name, nis and class_name are required")
	}
	return st, nil
}

func mapStoreErr(err error) error {
	var api *APIError
	switch {
	case errors.As(err, &api):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound("student not found")
	case db.IsDuplicateKey(err):
		return ErrConflict(MsgDuplicateNIS)
	default:
		log.Printf("[ERROR] students: %v", err)
		return ErrInternal("failed to access students")
	}
}
