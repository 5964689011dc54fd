package remote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
	"github.com/CrowderSoup/taskboard/handlers"
	"github.com/CrowderSoup/taskboard/remote"
	"github.com/CrowderSoup/taskboard/services"
	"github.com/CrowderSoup/taskboard/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	*httptest.Server
	auth *services.AuthService
	data *database.DataService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.InitDB(database.MemoryPath)
	if err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	data := database.NewDataService(db)
	auth := services.NewAuthService(services.Config{JWTSecret: "test-secret"}, quiet)
	hub := services.NewHub(quiet)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := mux.NewRouter()
	r.HandleFunc("/api/ws", handlers.NewRealtimeHandler(auth, hub, []string{"*"}, quiet).HandleWebSocket)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(handlers.NewAuthMiddleware(auth).Auth)
	handlers.NewRowsHandler(data, hub, quiet).Register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth, data: data}
}

func (s *testServer) client(t *testing.T, email string) *remote.Client {
	t.Helper()
	if err := s.data.EnsureUser(context.Background(), email); err != nil {
		t.Fatal(err)
	}
	token, err := s.auth.CreateJWT(email)
	if err != nil {
		t.Fatal(err)
	}
	c, err := remote.New(s.URL+"/", token, remote.WithLogger(quiet), remote.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestStoreOverRemote(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	client := srv.client(t, "test@example.com")

	s := store.New(client, store.WithLogger(quiet))
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	board, err := s.CreateBoard(ctx, "Work")
	if err != nil {
		t.Fatal(err)
	}
	todo, _ := s.CreateList(ctx, board.ID, "Todo")
	done, _ := s.CreateList(ctx, board.ID, "Done")
	due := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	card, err := s.CreateCard(ctx, todo.ID, "Ship it", "soon", &due)
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.AddChecklistItem(ctx, card.ID, "a", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddChecklistItem(ctx, card.ID, "a1", a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleChecklistItem(ctx, card.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.MoveCard(ctx, card.ID, done.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateNote(ctx, "idea", ""); err != nil {
		t.Fatal(err)
	}

	fresh := store.New(client, store.WithLogger(quiet))
	if err := fresh.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s.Boards(), fresh.Boards()); diff != "" {
		t.Errorf("remote reload differs (-local +remote):\n%s", diff)
	}
	if diff := cmp.Diff(s.Notes(), fresh.Notes()); diff != "" {
		t.Errorf("notes differ (-local +remote):\n%s", diff)
	}

	if err := s.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("DeleteBoard() error = %v", err)
	}
	rows, err := client.Select(ctx, gateway.Cards, gateway.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("cards left after board delete: %v", rows)
	}
}

func TestClientSelectFilters(t *testing.T) {
	ctx := context.Background()
	client := newTestServer(t).client(t, "test@example.com")

	board, err := client.Insert(ctx, gateway.Boards, gateway.Row{"name": "B", "position": 0})
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"x", "y", "z"} {
		if _, err := client.Insert(ctx, gateway.Lists, gateway.Row{"board_id": board.ID(), "name": name, "position": i}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := client.Select(ctx, gateway.Lists, gateway.Query{
		Filter:  map[string]any{"board_id": board.ID()},
		OrderBy: []gateway.Order{{Column: "position", Desc: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r["name"].(string))
	}
	if diff := cmp.Diff([]string{"z", "y", "x"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	client := srv.client(t, "test@example.com")

	err := client.Update(ctx, gateway.Boards, "missing", gateway.Row{"name": "x"})
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	var serr *remote.StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusNotFound {
		t.Errorf("Update(missing) status = %v, want 404", err)
	}

	if err := client.Delete(ctx, gateway.Cards, "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}

	_, err = client.Select(ctx, gateway.Table("users"), gateway.Query{})
	if !errors.As(err, &serr) || serr.Code != http.StatusBadRequest {
		t.Errorf("Select(users) error = %v, want 400", err)
	}

	_, err = client.Insert(ctx, gateway.Boards, gateway.Row{"name": "x", "owner": "someone@else"})
	if !errors.As(err, &serr) || serr.Code != http.StatusBadRequest {
		t.Errorf("Insert(owner) error = %v, want 400", err)
	}

	anon, err := remote.New(srv.URL, "not-a-token", remote.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	_, err = anon.Select(ctx, gateway.Boards, gateway.Query{})
	if !errors.As(err, &serr) || serr.Code != http.StatusUnauthorized {
		t.Errorf("Select() with bad token error = %v, want 401", err)
	}
}

func TestClientUpdateBatch(t *testing.T) {
	ctx := context.Background()
	client := newTestServer(t).client(t, "test@example.com")
	a, _ := client.Insert(ctx, gateway.Boards, gateway.Row{"name": "a", "position": 0})
	b, _ := client.Insert(ctx, gateway.Boards, gateway.Row{"name": "b", "position": 1})

	err := client.UpdateBatch(ctx, gateway.Boards, map[string]gateway.Row{
		a.ID():    {"position": 1},
		"missing": {"position": 0},
	})
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("UpdateBatch() error = %v, want ErrNotFound", err)
	}
	if err := client.UpdateBatch(ctx, gateway.Boards, map[string]gateway.Row{a.ID(): {"position": 1}, b.ID(): {"position": 0}}); err != nil {
		t.Fatal(err)
	}
	rows, err := client.Select(ctx, gateway.Boards, gateway.Query{OrderBy: gateway.ByPosition})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].ID() != b.ID() || rows[1].ID() != a.ID() {
		t.Errorf("order after batch = %v", rows)
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	alice := srv.client(t, "alice@example.com")
	bob := srv.client(t, "bob@example.com")

	if _, err := alice.Insert(ctx, gateway.Notes, gateway.Row{"title": "secret", "content": ""}); err != nil {
		t.Fatal(err)
	}
	rows, err := bob.Select(ctx, gateway.Notes, gateway.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("bob sees alice's notes: %v", rows)
	}
}

func TestWatch(t *testing.T) {
	srv := newTestServer(t)
	client := srv.client(t, "test@example.com")
	other := srv.client(t, "other@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes := make(chan gateway.Change, 16)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(ctx, func(c gateway.Change) { changes <- c })
	}()

	// The socket registers asynchronously, so keep writing until a change
	// comes through.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got gateway.Change
wait:
	for {
		select {
		case got = <-changes:
			break wait
		case <-tick.C:
			if _, err := other.Insert(ctx, gateway.Boards, gateway.Row{"name": "not mine", "position": 0}); err != nil {
				t.Fatal(err)
			}
			if _, err := client.Insert(ctx, gateway.Boards, gateway.Row{"name": "mine", "position": 0}); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("no change received")
		}
	}
	if got.Op != gateway.OpInsert || got.Table != gateway.Boards || got.ID == "" {
		t.Errorf("change = %+v", got)
	}

	mine, err := client.Select(context.Background(), gateway.Boards, gateway.Query{})
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, r := range mine {
		ids[r.ID()] = true
	}
	if !ids[got.ID] {
		t.Errorf("received a change for %s, which is not the watcher's row", got.ID)
	}

	cancel()
	select {
	case err := <-watchErr:
		if err != nil {
			t.Errorf("Watch() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestNewRejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "://bad"} {
		if _, err := remote.New(raw, ""); err == nil {
			t.Errorf("New(%q) succeeded", raw)
		}
	}
}

func TestEncodeQuery(t *testing.T) {
	q := gateway.Query{
		Filter:  map[string]any{"card_id": "c1", "parent_id": nil, "position": 2},
		OrderBy: []gateway.Order{{Column: "position"}, {Column: "created_at", Desc: true}},
	}
	got := remote.EncodeQuery(q)
	want := map[string][]string{
		"card_id":   {"c1"},
		"parent_id": {"null"},
		"position":  {"2"},
		"order":     {"position", "-created_at"},
	}
	if diff := cmp.Diff(want, map[string][]string(got)); diff != "" {
		t.Errorf("EncodeQuery (-want +got):\n%s", diff)
	}
	parsed := handlers.ParseQuery(got)
	wantParsed := gateway.Query{
		Filter:  map[string]any{"card_id": "c1", "parent_id": nil, "position": "2"},
		OrderBy: q.OrderBy,
	}
	if diff := cmp.Diff(wantParsed, parsed); diff != "" {
		t.Errorf("ParseQuery(EncodeQuery(q)) (-want +got):\n%s", diff)
	}
}
