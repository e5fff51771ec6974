package classes

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

// ===== Error model =====
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

func (s *Service) List(ctx context.Context) ([]Class, error) {
	return s.repo.ListClasses(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Class, error) {
	c, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, mapStoreErr(err)
	}
	return c, nil
}

// POST /classes
func (s *Service) Create(ctx context.Context, in ClassRequest) (Class, error) {
	c, err := fromRequest(in)
	if err != nil {
		return Class{}, err
	}
	if err := s.repo.InsertClass(ctx, &c); err != nil {
		return Class{}, mapStoreErr(err)
	}
	s.publish(changefeed.Insert, c.ID, &c, nil)
	return c, nil
}

// PUT /classes/:id
func (s *Service) Update(ctx context.Context, id string, in ClassRequest) (Class, error) {
	c, err := fromRequest(in)
	if err != nil {
		return Class{}, err
	}
	old, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, mapStoreErr(err)
	}
	c.ID = old.ID
	c.CreatedAt = old.CreatedAt
	if err := s.repo.UpdateClass(ctx, c); err != nil {
		return Class{}, mapStoreErr(err)
	}
	s.publish(changefeed.Update, c.ID, &c, &old)
	return c, nil
}

// DELETE /classes/:id: 在籍している生徒はそのまま残る。
func (s *Service) Delete(ctx context.Context, id string) error {
	old, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := s.repo.DeleteClass(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.publish(changefeed.Delete, id, nil, &old)
	return nil
}

func (s *Service) publish(typ changefeed.EventType, id string, newRow, oldRow *Class) {
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
	ev, err := changefeed.NewEvent(changefeed.TableClasses, typ, id, n, o)
	if err != nil {
		log.Printf("[ERROR] classes: build change event: %v", err)
		return
	}
	s.feed.Publish(ev)
}

func fromRequest(in ClassRequest) (Class, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Class{}, ErrInvalid("name is required")
	}
	return Class{
		Name:           name,
		TeacherName:    trimOrNil(in.TeacherName),
		TeacherNIP:     trimOrNil(in.TeacherNIP),
		HeadmasterName: trimOrNil(in.HeadmasterName),
		HeadmasterNIP:  trimOrNil(in.HeadmasterNIP),
	}, nil
}

// 空文字は NULL 扱い
func trimOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func mapStoreErr(err error) error {
	var api *APIError
	switch {
	case errors.As(err, &api):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound("class not found")
	case db.IsDuplicateKey(err):
		return ErrConflict("class name already exists")
	default:
		log.Printf("[ERROR] classes: %v", err)
		return ErrInternal("failed to access classes")
	}
}
