package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

// Publisher receives every committed change.
type Publisher interface {
	Publish(owner string, change gateway.Change)
}

// RowsHandler exposes the signed-in user's rows as a REST gateway. The
// remote package is its client.
type RowsHandler struct {
	dataService *database.DataService
	publisher   Publisher
	log         *slog.Logger
}

func NewRowsHandler(dataService *database.DataService, publisher Publisher, log *slog.Logger) *RowsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RowsHandler{dataService: dataService, publisher: publisher, log: log}
}

// Register mounts the row routes on r, which should already require auth.
func (h *RowsHandler) Register(r *mux.Router) {
	r.HandleFunc("/rows/{table}", h.Select).Methods(http.MethodGet)
	r.HandleFunc("/rows/{table}", h.Insert).Methods(http.MethodPost)
	r.HandleFunc("/rows/{table}", h.UpdateBatch).Methods(http.MethodPatch)
	r.HandleFunc("/rows/{table}/{id}", h.Update).Methods(http.MethodPatch)
	r.HandleFunc("/rows/{table}/{id}", h.Delete).Methods(http.MethodDelete)
}

// ParseQuery reads a Select query from URL parameters: every "order" value
// is a column, prefixed with "-" for descending; any other parameter is an
// equality filter, with "null" matching NULL.
func ParseQuery(values map[string][]string) gateway.Query {
	var q gateway.Query
	for key, vals := range values {
		if key == "order" {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		if q.Filter == nil {
			q.Filter = make(map[string]any)
		}
		if vals[0] == "null" {
			q.Filter[key] = nil
		} else {
			q.Filter[key] = vals[0]
		}
	}
	for _, col := range values["order"] {
		if name, desc := strings.CutPrefix(col, "-"); desc {
			q.OrderBy = append(q.OrderBy, gateway.Order{Column: name, Desc: true})
		} else {
			q.OrderBy = append(q.OrderBy, gateway.Order{Column: col})
		}
	}
	return q
}

func (h *RowsHandler) scope(w http.ResponseWriter, r *http.Request) (*database.Gateway, string, gateway.Table, bool) {
	email, ok := EmailFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, "", "", false
	}
	table := gateway.Table(mux.Vars(r)["table"])
	if !table.Valid() {
		http.Error(w, "unknown table", http.StatusBadRequest)
		return nil, "", "", false
	}
	return h.dataService.Gateway(email), email, table, true
}

func (h *RowsHandler) Select(w http.ResponseWriter, r *http.Request) {
	gw, _, table, ok := h.scope(w, r)
	if !ok {
		return
	}
	rows, err := gw.Select(r.Context(), table, ParseQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "select", table, err)
		return
	}
	if rows == nil {
		rows = []gateway.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *RowsHandler) Insert(w http.ResponseWriter, r *http.Request) {
	gw, email, table, ok := h.scope(w, r)
	if !ok {
		return
	}
	var row gateway.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		http.Error(w, "invalid row", http.StatusBadRequest)
		return
	}
	created, err := gw.Insert(r.Context(), table, row)
	if err != nil {
		h.fail(w, "insert", table, err)
		return
	}
	h.publisher.Publish(email, gateway.Change{Op: gateway.OpInsert, Table: table, ID: created.ID()})
	writeJSON(w, http.StatusCreated, created)
}

func (h *RowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	gw, email, table, ok := h.scope(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var patch gateway.Row
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid patch", http.StatusBadRequest)
		return
	}
	if err := gw.Update(r.Context(), table, id, patch); err != nil {
		h.fail(w, "update", table, err)
		return
	}
	h.publisher.Publish(email, gateway.Change{Op: gateway.OpUpdate, Table: table, ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *RowsHandler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	gw, email, table, ok := h.scope(w, r)
	if !ok {
		return
	}
	var patches map[string]gateway.Row
	if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
		http.Error(w, "invalid patches", http.StatusBadRequest)
		return
	}
	if err := gw.UpdateBatch(r.Context(), table, patches); err != nil {
		h.fail(w, "update batch", table, err)
		return
	}
	for id := range patches {
		h.publisher.Publish(email, gateway.Change{Op: gateway.OpUpdate, Table: table, ID: id})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RowsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	gw, email, table, ok := h.scope(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := gw.Delete(r.Context(), table, id); err != nil {
		h.fail(w, "delete", table, err)
		return
	}
	h.publisher.Publish(email, gateway.Change{Op: gateway.OpDelete, Table: table, ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// fail maps gateway errors onto status codes.
func (h *RowsHandler) fail(w http.ResponseWriter, op string, table gateway.Table, err error) {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gateway.ErrUnknownTable), errors.Is(err, database.ErrUnknownColumn),
		errors.Is(err, database.ErrUnknownParent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("row operation failed", "op", op, "table", table, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
