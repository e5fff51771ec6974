package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryStore(), testSecret, time.Hour)
	ctx := context.Background()
	if err := svc.Register(ctx, "admin", "admin-pass", RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if err := svc.Register(ctx, "guru", "guru-pass", ""); err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestService_LoginIssuesToken(t *testing.T) {
	svc := newTestService(t)

	tok, err := svc.Login(context.Background(), "guru", "guru-pass")
	if err != nil {
		t.Fatal(err)
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return []byte(testSecret), nil }); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != "guru" || claims["role"] != RoleOperator {
		t.Errorf("claims = %v", claims)
	}

	if _, err := svc.Login(context.Background(), "guru", "wrong"); !errors.Is(err, ErrBadCredential) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "x"); !errors.Is(err, ErrBadCredential) {
		t.Errorf("unknown account err = %v", err)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "guru", "another-pass", ""); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if err := svc.Register(ctx, "x", "short", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short password err = %v", err)
	}
	if err := svc.Register(ctx, "x", "long-enough", "root"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad role err = %v", err)
	}
}

func TestService_EnsureAdminIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryStore(), testSecret, 0)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := svc.EnsureAdmin(ctx, "admin", "admin-pass"); err != nil {
			t.Fatal(err)
		}
	}
	list, _ := svc.List(ctx)
	if len(list) != 1 || list[0].Role != RoleAdmin {
		t.Errorf("accounts = %+v", list)
	}
}

func TestService_ChangeIDAndDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ChangeID(ctx, "guru", "admin"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("taken id err = %v", err)
	}
	if err := svc.ChangeID(ctx, "guru", "guru2"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "guru"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete old id err = %v", err)
	}
	if err := svc.Delete(ctx, "guru2"); err != nil {
		t.Fatal(err)
	}
}

func TestParseTTL(t *testing.T) {
	if got := ParseTTL("30m"); got != 30*time.Minute {
		t.Errorf("30m = %v", got)
	}
	if got := ParseTTL("soon"); got != defaultTTL {
		t.Errorf("invalid = %v", got)
	}
}

func newTestRouter(svc *Service, guardEnabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	RegisterRoutes(api, svc)
	w := api.Group("", svc.WriteGuard(guardEnabled)...)
	w.POST("/attendance", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func do(r http.Handler, method, url, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, id, pw string) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/login", "", LoginRequest{ID: id, Password: pw})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", id, w.Code, w.Body.String())
	}
	var res struct{ Token string }
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	return res.Token
}

func TestHandler_WriteGuard(t *testing.T) {
	svc := newTestService(t)

	open := newTestRouter(svc, false)
	if w := do(open, http.MethodPost, "/api/v1/attendance", "", nil); w.Code != http.StatusCreated {
		t.Errorf("guard disabled: status = %d", w.Code)
	}

	r := newTestRouter(svc, true)
	if w := do(r, http.MethodPost, "/api/v1/attendance", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/attendance", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", w.Code)
	}
	tok := login(t, r, "guru", "guru-pass")
	if w := do(r, http.MethodPost, "/api/v1/attendance", tok, nil); w.Code != http.StatusCreated {
		t.Errorf("operator token: status = %d", w.Code)
	}

	other := NewService(NewMemoryStore(), "other-secret", time.Hour)
	if w := do(newTestRouter(other, true), http.MethodPost, "/api/v1/attendance", tok, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("foreign token: status = %d", w.Code)
	}
}

func TestHandler_ExpiredToken(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := svc.Login(context.Background(), "guru", "guru-pass")
	if err != nil {
		t.Fatal(err)
	}
	if w := do(newTestRouter(svc, true), http.MethodPost, "/api/v1/attendance", tok, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandler_AccountAdminOnly(t *testing.T) {
	svc := newTestService(t)
	r := newTestRouter(svc, true)

	op := login(t, r, "guru", "guru-pass")
	if w := do(r, http.MethodPost, "/api/v1/register", op, RegisterRequest{ID: "x", Password: "password1"}); w.Code != http.StatusForbidden {
		t.Errorf("operator register: status = %d", w.Code)
	}

	admin := login(t, r, "admin", "admin-pass")
	if w := do(r, http.MethodPost, "/api/v1/register", admin, RegisterRequest{ID: "x", Password: "password1"}); w.Code != http.StatusCreated {
		t.Errorf("admin register: status = %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/v1/register", admin, RegisterRequest{ID: "x", Password: "password1"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: status = %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/accounts/admin", admin, nil); w.Code != http.StatusBadRequest {
		t.Errorf("self delete: status = %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/accounts/x", admin, nil); w.Code != http.StatusOK {
		t.Errorf("delete: status = %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/accounts/x", admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete again: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/login", "", LoginRequest{ID: "guru", Password: "nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login: status = %d", w.Code)
	}
}

func TestStore_MySQL(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	s := NewStore(conn)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, password_hash, role, is_disabled, created_at\s+FROM auth_accounts`).
		WithArgs("guru").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "role", "is_disabled", "created_at"}).
			AddRow("guru", "hash", RoleOperator, false, created))
	a, err := s.GetByID(ctx, "guru")
	if err != nil || a == nil || a.Role != RoleOperator || !a.CreatedAt.Equal(created) {
		t.Fatalf("GetByID = %+v, %v", a, err)
	}

	mock.ExpectQuery(`FROM auth_accounts`).WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "role", "is_disabled", "created_at"}))
	if a, err := s.GetByID(ctx, "nobody"); a != nil || err != nil {
		t.Errorf("missing = %+v, %v", a, err)
	}

	mock.ExpectExec(`INSERT INTO auth_accounts`).
		WithArgs("guru", "hash", RoleOperator, sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if err := s.Create(ctx, &Account{ID: "guru", PasswordHash: "hash", Role: RoleOperator}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}

	mock.ExpectExec(`DELETE FROM auth_accounts WHERE id = \?`).WithArgs("guru").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if n, err := s.Delete(ctx, "guru"); n != 1 || err != nil {
		t.Errorf("delete = %d, %v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
