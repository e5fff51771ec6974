package classes

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Class は classes テーブルの1行。name が students.class_name の結合キー。
type Class struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TeacherName    *string   `json:"teacher_name"`
	TeacherNIP     *string   `json:"teacher_nip"`
	HeadmasterName *string   `json:"headmaster_name"`
	HeadmasterNIP  *string   `json:"headmaster_nip"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate rejects rows that cannot be mirrored (missing key fields).
func (c Class) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("class: missing id")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("class: missing name")
	}
	return nil
}

// スキャン用
type classRow struct {
	ID             string
	Name           string
	TeacherName    sql.NullString
	TeacherNIP     sql.NullString
	HeadmasterName sql.NullString
	HeadmasterNIP  sql.NullString
	CreatedAt      time.Time
}

func (r classRow) toModel() Class {
	return Class{
		ID:             r.ID,
		Name:           r.Name,
		TeacherName:    nullToPtr(r.TeacherName),
		TeacherNIP:     nullToPtr(r.TeacherNIP),
		HeadmasterName: nullToPtr(r.HeadmasterName),
		HeadmasterNIP:  nullToPtr(r.HeadmasterNIP),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func nullToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
