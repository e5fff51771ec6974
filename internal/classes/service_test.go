package classes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/memstore"
	"absensi-backend/internal/students"
)

func strp(s string) *string { return &s }

func newService(t *testing.T) (*classes.Service, *memstore.Store, *changefeed.Subscription) {
	t.Helper()
	broker := changefeed.NewBroker(16)
	t.Cleanup(broker.Close)
	sub := broker.Subscribe(changefeed.TableClasses)
	mem := memstore.New()
	return classes.NewService(mem, broker), mem, sub
}

func nextEvent(t *testing.T, sub *changefeed.Subscription) changefeed.Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	default:
		t.Fatal("no change event published")
		return changefeed.Event{}
	}
}

func code(err error) classes.Code {
	var api *classes.APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return ""
}

func TestService_CreatePublishesInsert(t *testing.T) {
	svc, _, sub := newService(t)

	c, err := svc.Create(context.Background(), classes.ClassRequest{Name: "  TK A ", TeacherName: strp(" "), HeadmasterName: strp("Pak Joko")})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "TK A" || c.TeacherName != nil || *c.HeadmasterName != "Pak Joko" {
		t.Errorf("class = %+v", c)
	}
	ev := nextEvent(t, sub)
	if ev.Type != changefeed.Insert || ev.ID != c.ID || len(ev.Old) != 0 {
		t.Errorf("event = %+v", ev)
	}
}

func TestService_DuplicateNameConflicts(t *testing.T) {
	svc, _, sub := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, classes.ClassRequest{Name: "TK A"}); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, sub)
	_, err := svc.Create(ctx, classes.ClassRequest{Name: "TK A"})
	if code(err) != classes.CodeConflict {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
	select {
	case ev := <-sub.C():
		t.Errorf("failed write published %+v", ev)
	default:
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	svc, mem, sub := newService(t)
	ctx := context.Background()

	c, _ := svc.Create(ctx, classes.ClassRequest{Name: "TK A"})
	nextEvent(t, sub)

	upd, err := svc.Update(ctx, c.ID, classes.ClassRequest{Name: "TK A1", TeacherNIP: strp("1987")})
	if err != nil {
		t.Fatal(err)
	}
	if upd.CreatedAt != c.CreatedAt || upd.ID != c.ID {
		t.Errorf("update lost identity: %+v", upd)
	}
	if ev := nextEvent(t, sub); ev.Type != changefeed.Update || len(ev.Old) == 0 {
		t.Errorf("update event = %+v", ev)
	}

	// 在籍生徒は消えない
	if err := mem.InsertStudent(ctx, &students.Student{Name: "Ani", NIS: "1", ClassName: "TK A1", Status: true}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, sub); ev.Type != changefeed.Delete {
		t.Errorf("delete event = %+v", ev)
	}
	left, _ := mem.ListStudents(ctx, students.Filter{})
	if len(left) != 1 {
		t.Errorf("students after class delete = %d", len(left))
	}
	if err := svc.Delete(ctx, c.ID); code(err) != classes.CodeNotFound {
		t.Errorf("second delete err = %v", err)
	}
	if _, err := svc.Update(ctx, "missing", classes.ClassRequest{Name: "X"}); code(err) != classes.CodeNotFound {
		t.Errorf("update missing err = %v", err)
	}
}

func TestService_StoreFailureIsInternal(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.FailOn("InsertClass", errors.New("connection reset"))
	if _, err := svc.Create(context.Background(), classes.ClassRequest{Name: "TK A"}); code(err) != classes.CodeInternal {
		t.Errorf("err = %v", err)
	}
}

func TestHandler_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newService(t)
	r := gin.New()
	classes.RegisterRoutes(r.Group("/api/v1"), svc)

	do := func(method, url string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, url, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/v1/classes", classes.ClassRequest{Name: "TK B"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var created classes.Class
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	if w := do(http.MethodPost, "/api/v1/classes", classes.ClassRequest{Name: "TK A"}); w.Code != http.StatusCreated {
		t.Fatalf("create 2 = %d", w.Code)
	}
	if w := do(http.MethodPost, "/api/v1/classes", classes.ClassRequest{Name: "TK A"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d", w.Code)
	}
	if w := do(http.MethodPost, "/api/v1/classes", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d", w.Code)
	}

	w = do(http.MethodGet, "/api/v1/classes", nil)
	var list classes.ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || list.Items[0].Name != "TK A" {
		t.Errorf("list = %+v", list)
	}

	if w := do(http.MethodDelete, "/api/v1/classes/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(http.MethodGet, "/api/v1/classes/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", w.Code)
	}
}
