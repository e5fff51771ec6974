package attendance

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"absensi-backend/internal/platform/db"
)

type Repository interface {
	UpsertAttendance(ctx context.Context, entries []Entry) ([]UpsertResult, error)
	GetAttendance(ctx context.Context, id string) (Record, error)
	ListAttendance(ctx context.Context, q ListQuery) ([]Record, int64, error)
	DeleteAttendance(ctx context.Context, id string) error
	CountAttendance(ctx context.Context, from, to string) (map[Status]int64, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// students と結合した表示用 SELECT
const selectRecord = `
	SELECT a.id, a.student_id, s.name, s.nis, s.class_name, a.status, a.note,
	       DATE_FORMAT(a.date, '%Y-%m-%d') AS date, a.created_at
	FROM attendance a
	JOIN students s ON s.id = a.student_id`

func scanRecord(sc interface{ Scan(dest ...any) error }) (Record, error) {
	var r recordRow
	if err := sc.Scan(&r.ID, &r.StudentID, &r.StudentName, &r.NIS, &r.ClassName, &r.Status, &r.Note, &r.Date, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	return r.toModel(), nil
}

// UpsertAttendance: (student_id, date)（UNIQUE）で INSERT または UPDATE。全件1トランザクション。
func (s *Store) UpsertAttendance(ctx context.Context, entries []Entry) ([]UpsertResult, error) {
	out := make([]UpsertResult, 0, len(entries))
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		now := time.Now().UTC().Truncate(time.Second)
		for _, e := range entries {
			// INSERT ... ON DUPLICATE KEY UPDATE
			// - 新規: RowsAffected = 1
			// - 既存更新: RowsAffected = 2（値が同じなら 0）
			res, err := tx.ExecContext(ctx, `
			INSERT INTO attendance (id, student_id, date, status, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			note   = VALUES(note)`,
				db.NewID(), e.StudentID, e.Date, string(e.Status), noteOrNil(e.Note), now,
			)
			if err != nil {
				return err
			}
			aff, err := res.RowsAffected()
			if err != nil {
				return err
			}

			rec, err := scanRecord(tx.QueryRowContext(ctx,
				selectRecord+` WHERE a.student_id = ? AND a.date = ?`, e.StudentID, e.Date))
			if err != nil {
				if err == sql.ErrNoRows {
					return ErrInternal("upserted but not found")
				}
				return err
			}
			out = append(out, UpsertResult{Record: rec, Created: aff == 1})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetAttendance(ctx context.Context, id string) (Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE a.id = ?`, id))
}

// ListAttendance: 条件に応じて動的WHERE + ORDER + LIMIT/OFFSET
func (s *Store) ListAttendance(ctx context.Context, q ListQuery) ([]Record, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)
	buf.WriteString(selectRecord)

	if q.StudentID != nil && *q.StudentID != "" {
		wheres = append(wheres, "a.student_id = ?")
		args = append(args, *q.StudentID)
	}
	if q.ClassName != nil && *q.ClassName != "" {
		wheres = append(wheres, "s.class_name = ?")
		args = append(args, *q.ClassName)
	}
	if q.Status != nil && *q.Status != "" {
		wheres = append(wheres, "a.status = ?")
		args = append(args, string(*q.Status))
	}
	if q.On != nil && *q.On != "" {
		wheres = append(wheres, "a.date = ?")
		args = append(args, *q.On)
	} else {
		if q.From != nil && *q.From != "" {
			wheres = append(wheres, "a.date >= ?")
			args = append(args, *q.From)
		}
		if q.To != nil && *q.To != "" {
			wheres = append(wheres, "a.date <= ?")
			args = append(args, *q.To)
		}
	}
	where := ""
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}
	buf.WriteString(where)

	// ORDER
	switch q.Sort {
	case SortDateAsc:
		buf.WriteString(" ORDER BY a.date ASC, s.name ASC, a.id ASC")
	case SortStudentName:
		buf.WriteString(" ORDER BY s.name ASC, a.date ASC, a.id ASC")
	default:
		buf.WriteString(" ORDER BY a.date DESC, s.name ASC, a.id ASC")
	}

	// LIMIT/OFFSET
	if q.Limit > 0 {
		buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset))
	}

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Record, 0, 64)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if q.Limit <= 0 {
		return out, int64(len(out)), nil
	}
	// COUNT（ORDER BY より前までを再構築）
	var total int64
	cnt := `SELECT COUNT(*) FROM attendance a JOIN students s ON s.id = a.student_id` + where
	if err := s.db.QueryRowContext(ctx, cnt, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = ?`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountAttendance: 期間内のステータス別件数
func (s *Store) CountAttendance(ctx context.Context, from, to string) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT status, COUNT(*) AS cnt
	FROM attendance
	WHERE date BETWEEN ? AND ?
	GROUP BY status`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Status]int64, len(Statuses))
	for rows.Next() {
		var (
			st  string
			cnt int64
		)
		if err := rows.Scan(&st, &cnt); err != nil {
			return nil, err
		}
		out[Status(st)] = cnt
	}
	return out, rows.Err()
}

// ===== helpers =====

func noteOrNil(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
