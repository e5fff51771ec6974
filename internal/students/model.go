package students

import (
	"errors"
	"strings"
	"time"
)

// AllClasses: クラス絞り込みなし（画面の「SEMUA」）
const AllClasses = "SEMUA"

type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NIS       string    `json:"nis"`
	ClassName string    `json:"class_name"`
	Status    bool      `json:"status"` // true = active
	CreatedAt time.Time `json:"created_at"`
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("student: missing id")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("student: missing name")
	}
	return nil
}

type Filter struct {
	ClassName  string // 空 or AllClasses で全件
	Search     string // 名前の部分一致（大文字小文字無視）
	ActiveOnly bool
}

// Match applies the filter in memory (used on cache snapshots).
func (f Filter) Match(s Student) bool {
	if f.ClassName != "" && f.ClassName != AllClasses && s.ClassName != f.ClassName {
		return false
	}
	if f.ActiveOnly && !s.Status {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		return strings.Contains(strings.ToLower(s.Name), strings.ToLower(q))
	}
	return true
}

type studentRow struct {
	ID        string
	Name      string
	NIS       string
	ClassName string
	Status    bool
	CreatedAt time.Time
}

func (r studentRow) toModel() Student {
	return Student{
		ID:        r.ID,
		Name:      r.Name,
		NIS:       r.NIS,
		ClassName: r.ClassName,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
