package attendance

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPresent    Status = "Hadir"
	StatusSick       Status = "Sakit"
	StatusPermission Status = "Izin"
	StatusAbsent     Status = "Alfa"
)

// Statuses in report column order (H, S, I, A).
var Statuses = []Status{StatusPresent, StatusSick, StatusPermission, StatusAbsent}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusSick, StatusPermission, StatusAbsent:
		return true
	}
	return false
}

// Letter は月報の1文字表記。
func (s Status) Letter() string {
	switch s {
	case StatusPresent:
		return "H"
	case StatusSick:
		return "S"
	case StatusPermission:
		return "I"
	case StatusAbsent:
		return "A"
	}
	return ""
}

// KeepsNote: 病欠・許可欠のみ理由を残す
func (s Status) KeepsNote() bool {
	return s == StatusSick || s == StatusPermission
}

// ParseStatus accepts the stored values case-insensitively plus English aliases.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "hadir", "present":
		return StatusPresent, nil
	case "sakit", "sick":
		return StatusSick, nil
	case "izin", "permission":
		return StatusPermission, nil
	case "alfa", "alpha", "absent":
		return StatusAbsent, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", v)
}

// Record は attendance の1行を生徒情報と結合した表示形。
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	NIS         string    `json:"nis,omitempty"`
	ClassName   string    `json:"class_name"`
	Status      Status    `json:"status"`
	Note        *string   `json:"note,omitempty"`
	Date        string    `json:"date"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("attendance: missing id")
	}
	if strings.TrimSpace(r.StudentID) == "" {
		return errors.New("attendance: missing student_id")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("attendance: bad date %q", r.Date)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("attendance: bad status %q", r.Status)
	}
	return nil
}

// NoteText returns the note or "" when absent.
func (r Record) NoteText() string {
	if r.Note == nil {
		return ""
	}
	return *r.Note
}

// Entry は書き込み1件分。(StudentID, Date) が一意キー。
type Entry struct {
	StudentID string
	Date      string
	Status    Status
	Note      *string
}

// UpsertResult: Created=false は既存行の置き換え
type UpsertResult struct {
	Record  Record
	Created bool
}

// DB行に対応（スキャン用）
type recordRow struct {
	ID          string
	StudentID   string
	StudentName string
	NIS         string
	ClassName   string
	Status      string
	Note        sql.NullString
	Date        string
	CreatedAt   time.Time
}

func (r recordRow) toModel() Record {
	rec := Record{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		NIS:         r.NIS,
		ClassName:   r.ClassName,
		Status:      Status(r.Status),
		Date:        r.Date,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.Note.Valid {
		v := r.Note.String
		rec.Note = &v
	}
	return rec
}
