package classes

import (
	"context"
	"database/sql"
	"time"

	"absensi-backend/internal/platform/db"
)

// Repository is the tabular store contract for classes. Missing rows are
// reported as sql.ErrNoRows, uniqueness violations as MySQL error 1062.
type Repository interface {
	ListClasses(ctx context.Context) ([]Class, error)
	GetClass(ctx context.Context, id string) (Class, error)
	InsertClass(ctx context.Context, c *Class) error
	UpdateClass(ctx context.Context, c Class) error
	DeleteClass(ctx context.Context, id string) error
}

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store { return &Store{db: conn} }

const selectClass = `
	SELECT id, name, teacher_name, teacher_nip, headmaster_name, headmaster_nip, created_at
	FROM classes`

func scanClass(sc interface{ Scan(dest ...any) error }) (Class, error) {
	var r classRow
	if err := sc.Scan(&r.ID, &r.Name, &r.TeacherName, &r.TeacherNIP, &r.HeadmasterName, &r.HeadmasterNIP, &r.CreatedAt); err != nil {
		return Class{}, err
	}
	return r.toModel(), nil
}

func (s *Store) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := s.db.QueryContext(ctx, selectClass+` ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Class, 0, 8)
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetClass(ctx context.Context, id string) (Class, error) {
	return scanClass(s.db.QueryRowContext(ctx, selectClass+` WHERE id = ?`, id))
}

// InsertClass は ID と created_at を発番して書き込む。
func (s *Store) InsertClass(ctx context.Context, c *Class) error {
	c.ID = db.NewID()
	c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO classes (id, name, teacher_name, teacher_nip, headmaster_name, headmaster_nip, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, ptrOrNil(c.TeacherName), ptrOrNil(c.TeacherNIP),
		ptrOrNil(c.HeadmasterName), ptrOrNil(c.HeadmasterNIP), c.CreatedAt,
	)
	return err
}

func (s *Store) UpdateClass(ctx context.Context, c Class) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE classes
	SET name = ?, teacher_name = ?, teacher_nip = ?, headmaster_name = ?, headmaster_nip = ?
	WHERE id = ?`,
		c.Name, ptrOrNil(c.TeacherName), ptrOrNil(c.TeacherNIP),
		ptrOrNil(c.HeadmasterName), ptrOrNil(c.HeadmasterNIP), c.ID,
	)
	if err != nil {
		return err
	}
	return requireOne(ctx, s, res, c.ID)
}

// DeleteClass は students には触れない（class_name は文字列の結合キー）。
func (s *Store) DeleteClass(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, id)
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

// MySQL は値が変わらない UPDATE で RowsAffected=0 を返すので存在確認し直す。
func requireOne(ctx context.Context, s *Store, res sql.Result, id string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff > 0 {
		return nil
	}
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE id = ?`, id).Scan(&one)
}

func ptrOrNil(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}
