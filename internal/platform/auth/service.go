// Package auth manages operator accounts and the bearer tokens that guard
// the write routes when authentication is enabled.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator" // 出欠入力のみ

	minPasswordLen = 8
	defaultTTL     = 24 * time.Hour
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrBadCredential = errors.New("authentication failed")
	ErrDisabled      = errors.New("account disabled")
	ErrInvalidInput  = errors.New("invalid input")
)

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService: secret が空だと起動ごとに署名鍵が変わる（再起動でトークン無効）。
func NewService(store AccountStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key := []byte(secret)
	if len(key) == 0 {
		log.Printf("[WARN] auth: secret is empty, using a random per-process key")
		key = []byte(randomKey())
	}
	return &Service{store: store, secret: key, ttl: ttl, now: time.Now}
}

// ParseTTL は "24h" のような文字列。読めなければ既定値。
func ParseTTL(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return defaultTTL
	}
	return d
}

func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", ErrBadCredential
	}
	if acct.IsDisabled {
		return "", ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrBadCredential
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(password) < minPasswordLen {
		return fmt.Errorf("%w: id is required and password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if role == "" {
		role = RoleOperator
	}
	if role != RoleAdmin && role != RoleOperator {
		return fmt.Errorf("%w: role must be admin or operator", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, &Account{ID: id, PasswordHash: string(hash), Role: role})
}

// EnsureAdmin は管理者が未作成のときだけ作る（初回起動用）。
func (s *Service) EnsureAdmin(ctx context.Context, id, password string) error {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if acct != nil {
		return nil
	}
	if err := s.Register(ctx, id, password, RoleAdmin); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	log.Printf("[INFO] auth: created admin account %q", id)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.store.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ChangeID(ctx context.Context, oldID, newID string) error {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return fmt.Errorf("%w: new id is required", ErrInvalidInput)
	}
	old, err := s.store.GetByID(ctx, oldID)
	if err != nil {
		return err
	}
	if old == nil {
		return ErrNotFound
	}
	nw, err := s.store.GetByID(ctx, newID)
	if err != nil {
		return err
	}
	if nw != nil {
		return ErrAlreadyExists
	}

	updated, err := s.store.UpdateID(ctx, oldID, newID)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func randomKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
