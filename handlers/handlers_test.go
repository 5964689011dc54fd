package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
	"github.com/CrowderSoup/taskboard/services"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const testEmail = "test@example.com"

type recorder struct {
	mu      sync.Mutex
	changes []gateway.Change
	owners  []string
}

func (r *recorder) Publish(owner string, change gateway.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, owner)
	r.changes = append(r.changes, change)
}

func setupTestDB(t *testing.T) *database.DataService {
	t.Helper()
	db, err := database.InitDB(database.MemoryPath)
	if err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	data := database.NewDataService(db)
	if err := data.EnsureUser(context.Background(), testEmail); err != nil {
		t.Fatal(err)
	}
	return data
}

// rowsRouter mounts the rows API with the caller already signed in.
func rowsRouter(t *testing.T) (*mux.Router, *recorder) {
	t.Helper()
	pub := &recorder{}
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithEmail(req.Context(), testEmail)))
		})
	})
	NewRowsHandler(setupTestDB(t), pub, quiet).Register(api)
	return r, pub
}

func serve(h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRowsLifecycle(t *testing.T) {
	r, pub := rowsRouter(t)

	rr := serve(r, http.MethodPost, "/api/rows/boards", gateway.Row{"name": "Work", "position": 0})
	if rr.Code != http.StatusCreated {
		t.Fatalf("insert status = %d: %s", rr.Code, rr.Body)
	}
	var board gateway.Row
	if err := json.NewDecoder(rr.Body).Decode(&board); err != nil {
		t.Fatal(err)
	}
	id := board.ID()

	rr = serve(r, http.MethodPatch, "/api/rows/boards/"+id, gateway.Row{"name": "Home"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body)
	}
	rr = serve(r, http.MethodPatch, "/api/rows/boards", map[string]gateway.Row{id: {"position": 3}})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("batch status = %d: %s", rr.Code, rr.Body)
	}

	rr = serve(r, http.MethodGet, "/api/rows/boards?order=-position", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("select status = %d", rr.Code)
	}
	var rows []gateway.Row
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Home" || rows[0]["position"] != float64(3) {
		t.Errorf("rows = %v", rows)
	}

	rr = serve(r, http.MethodDelete, "/api/rows/boards/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	want := []gateway.Change{
		{Op: gateway.OpInsert, Table: gateway.Boards, ID: id},
		{Op: gateway.OpUpdate, Table: gateway.Boards, ID: id},
		{Op: gateway.OpUpdate, Table: gateway.Boards, ID: id},
		{Op: gateway.OpDelete, Table: gateway.Boards, ID: id},
	}
	if diff := cmp.Diff(want, pub.changes); diff != "" {
		t.Errorf("published changes (-want +got):\n%s", diff)
	}
	for _, owner := range pub.owners {
		if owner != testEmail {
			t.Errorf("published to %q", owner)
		}
	}
}

func TestRowsEmptySelectIsArray(t *testing.T) {
	r, _ := rowsRouter(t)
	rr := serve(r, http.MethodGet, "/api/rows/notes", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestRowsErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"unknown table", http.MethodGet, "/api/rows/users", nil, http.StatusBadRequest},
		{"unknown filter column", http.MethodGet, "/api/rows/boards?owner=x", nil, http.StatusBadRequest},
		{"unknown order column", http.MethodGet, "/api/rows/boards?order=secret", nil, http.StatusBadRequest},
		{"missing row", http.MethodPatch, "/api/rows/boards/nope", gateway.Row{"name": "x"}, http.StatusNotFound},
		{"missing delete", http.MethodDelete, "/api/rows/cards/nope", nil, http.StatusNotFound},
		{"bad body", http.MethodPost, "/api/rows/boards", "not an object", http.StatusBadRequest},
		{"bad column on insert", http.MethodPost, "/api/rows/boards", gateway.Row{"name": "x", "owner": "y"}, http.StatusBadRequest},
		{"unknown parent", http.MethodPost, "/api/rows/lists", gateway.Row{"board_id": "nope", "name": "x", "position": 0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, pub := rowsRouter(t)
			rr := serve(r, tt.method, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body)
			}
			if len(pub.changes) != 0 {
				t.Errorf("failed request published %v", pub.changes)
			}
		})
	}
}

func TestRowsRequireEmail(t *testing.T) {
	r := mux.NewRouter()
	NewRowsHandler(setupTestDB(t), &recorder{}, quiet).Register(r)
	rr := serve(r, http.MethodGet, "/rows/boards", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestParseQuery(t *testing.T) {
	got := ParseQuery(url.Values{
		"card_id":   {"c1"},
		"parent_id": {"null"},
		"order":     {"position", "-created_at"},
	})
	want := gateway.Query{
		Filter:  map[string]any{"card_id": "c1", "parent_id": nil},
		OrderBy: []gateway.Order{{Column: "position"}, {Column: "created_at", Desc: true}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseQuery (-want +got):\n%s", diff)
	}
	if q := ParseQuery(url.Values{}); q.Filter != nil || q.OrderBy != nil {
		t.Errorf("empty query = %+v", q)
	}
}

func newAuthService() *services.AuthService {
	return services.NewAuthService(services.Config{JWTSecret: "test-secret"}, quiet)
}

func TestAuthMiddleware(t *testing.T) {
	auth := newAuthService()
	token, err := auth.CreateJWT(testEmail)
	if err != nil {
		t.Fatal(err)
	}
	var seen string
	h := NewAuthMiddleware(auth).Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = EmailFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen != testEmail {
				t.Errorf("email in context = %q", seen)
			}
		})
	}
}

func TestMagicLinkFlow(t *testing.T) {
	auth := newAuthService()
	db, err := database.InitDB(database.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	data := database.NewDataService(db)
	h := NewAuthHandler(auth, data, quiet)

	rr := serve(http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login", map[string]string{"email": "New User <new@example.com>"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rr.Code, rr.Body)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	link, err := url.Parse(resp["magicLink"])
	if err != nil {
		t.Fatal(err)
	}

	rr = serve(http.HandlerFunc(h.HandleMagicLink), http.MethodGet, link.RequestURI(), nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("magic link status = %d: %s", rr.Code, rr.Body)
	}
	redirect, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if redirect.Query().Get("email") != "new@example.com" {
		t.Errorf("redirect email = %q", redirect.Query().Get("email"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+redirect.Query().Get("token"))
	rr = httptest.NewRecorder()
	h.VerifyToken(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("verify status = %d", rr.Code)
	}

	// The user row now exists, so its gateway can write.
	if _, err := data.Gateway("new@example.com").Insert(context.Background(), gateway.Boards, gateway.Row{"name": "b", "position": 0}); err != nil {
		t.Errorf("insert for new user: %v", err)
	}

	rr = serve(http.HandlerFunc(h.HandleMagicLink), http.MethodGet, link.RequestURI(), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("reused link status = %d, want 400", rr.Code)
	}
}

func TestLoginRejectsBadEmail(t *testing.T) {
	h := NewAuthHandler(newAuthService(), nil, quiet)
	rr := serve(http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	h := NewRealtimeHandler(newAuthService(), services.NewHub(quiet), []string{"*"}, quiet)
	for _, target := range []string{"/api/ws", "/api/ws?token=bad"} {
		rr := httptest.NewRecorder()
		h.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", target, rr.Code)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://boards.example.com"})
	for origin, want := range map[string]bool{
		"":                           true,
		"https://boards.example.com": true,
		"https://evil.example.com":   false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Errorf("origin %q allowed = %v, want %v", origin, got, want)
		}
	}
	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("wildcard rejected a request")
	}
}
