package students

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"time"

	"absensi-backend/internal/platform/db"
)

type Repository interface {
	ListStudents(ctx context.Context, f Filter) ([]Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	InsertStudent(ctx context.Context, s *Student) error
	UpdateStudent(ctx context.Context, s Student) error
	DeleteStudent(ctx context.Context, id string) error
}

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store { return &Store{db: conn} }

const selectStudent = `SELECT id, name, nis, class_name, status, created_at FROM students`

func scanStudent(sc interface{ Scan(dest ...any) error }) (Student, error) {
	var r studentRow
	if err := sc.Scan(&r.ID, &r.Name, &r.NIS, &r.ClassName, &r.Status, &r.CreatedAt); err != nil {
		return Student{}, err
	}
	return r.toModel(), nil
}

// ListStudents: 動的WHERE + 名前順
func (s *Store) ListStudents(ctx context.Context, f Filter) ([]Student, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)
	buf.WriteString(selectStudent)

	if f.ClassName != "" && f.ClassName != AllClasses {
		wheres = append(wheres, "class_name = ?")
		args = append(args, f.ClassName)
	}
	if f.ActiveOnly {
		wheres = append(wheres, "status = 1")
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		wheres = append(wheres, "LOWER(name) LIKE ? ESCAPE '!'")
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q))+"%")
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	buf.WriteString(" ORDER BY name ASC, id ASC")

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Student, 0, 32)
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, id string) (Student, error) {
	return scanStudent(s.db.QueryRowContext(ctx, selectStudent+` WHERE id = ?`, id))
}

func (s *Store) InsertStudent(ctx context.Context, st *Student) error {
	st.ID = db.NewID()
	st.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO students (id, name, nis, class_name, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.NIS, st.ClassName, st.Status, st.CreatedAt,
	)
	return err
}

func (s *Store) UpdateStudent(ctx context.Context, st Student) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE students SET name = ?, nis = ?, class_name = ?, status = ?
	WHERE id = ?`,
		st.Name, st.NIS, st.ClassName, st.Status, st.ID,
	)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff > 0 {
		return nil
	}
	// 変更なしの UPDATE も 0 件になるので存在確認
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ?`, st.ID).Scan(&one)
}

// DeleteStudent: attendance は FK の ON DELETE CASCADE で消える。
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id)
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

// LIKE のワイルドカードを文字として扱う（部分一致は Filter.Match と同じ）
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
