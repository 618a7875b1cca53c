// Package remotetest provides an in-memory fake of the remote table service:
// the PostgREST subset the remote adapter uses, the realtime websocket, and
// fault injection.
package remotetest

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/neoprompts/neoprompts/internal/prompt"
)

const objectMedia = "application/vnd.pgrst.object+json"

var knownTables = []string{"collections", "prompts", "tags", "settings"}

// watched tables emit realtime changes.
var watched = map[string]bool{"collections": true, "prompts": true, "tags": true}

type row = map[string]any

type fault struct {
	method string
	table  string
	status int
	code   string
}

// Server is a running fake. Its URL is the service base URL.
type Server struct {
	*httptest.Server
	Key string

	mu       sync.Mutex
	tables   map[string][]row
	faults   []fault
	sockets  map[*websocket.Conn]map[string]bool
	requests []string
}

// NewServer starts a fake that accepts key as its API key.
func NewServer(key string) *Server {
	s := &Server{
		Key:     key,
		tables:  make(map[string][]row),
		sockets: make(map[*websocket.Conn]map[string]bool),
	}
	for _, t := range knownTables {
		s.tables[t] = []row{}
	}

	ws := websocket.Server{
		Handshake: func(_ *websocket.Config, r *http.Request) error {
			if r.URL.Query().Get("apikey") != s.Key {
				return fmt.Errorf("invalid api key")
			}
			return nil
		},
		Handler: s.serveSocket,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", s.serveREST)
	mux.Handle("/realtime/v1/websocket", ws)
	s.Server = httptest.NewServer(mux)
	return s
}

// Close drops every realtime socket and stops the server.
func (s *Server) Close() {
	s.DropSockets()
	s.Server.Close()
}

// DropSockets closes every open realtime socket from the server side, the
// way the service does on a restart or an idle timeout.
func (s *Server) DropSockets() {
	s.mu.Lock()
	conns := slices.Collect(maps.Keys(s.sockets))
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// FailNext makes the next request matching method and table fail with
// status and the given service error code.
func (s *Server) FailNext(method, table string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, table: table, status: status, code: code})
}

// Rows returns a copy of a table's rows.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.tables[table]))
	for i, r := range s.tables[table] {
		out[i] = maps.Clone(r)
	}
	return out
}

// Requests returns every REST request seen so far as "METHOD table".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Subscribers returns the number of joined realtime channels.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, topics := range s.sockets {
		n += len(topics)
	}
	return n
}

// REST

type serviceError struct {
	status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

func fail(status int, code, msg string) *serviceError {
	return &serviceError{status: status, Code: code, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serveREST(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != s.Key || r.Header.Get("Authorization") != "Bearer "+s.Key {
		writeJSON(w, http.StatusUnauthorized, fail(http.StatusUnauthorized, "", "Invalid API key"))
		return
	}
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if !slices.Contains(knownTables, table) {
		e := fail(http.StatusNotFound, "42P01", fmt.Sprintf("relation \"public.%s\" does not exist", table))
		writeJSON(w, e.status, e)
		return
	}

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+table)
	if e := s.takeFault(r.Method, table); e != nil {
		s.mu.Unlock()
		writeJSON(w, e.status, e)
		return
	}
	status, out, changed, e := s.handle(r, table, body)
	s.mu.Unlock()

	if e != nil {
		writeJSON(w, e.status, e)
		return
	}
	if changed {
		s.broadcast(table, r.Method)
	}
	if out == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) takeFault(method, table string) *serviceError {
	for i, f := range s.faults {
		if f.method == method && f.table == table {
			s.faults = slices.Delete(s.faults, i, i+1)
			return fail(f.status, f.code, "injected failure")
		}
	}
	return nil
}

// handle runs one request against the tables. The caller holds s.mu.
func (s *Server) handle(r *http.Request, table string, body []byte) (status int, out any, changed bool, e *serviceError) {
	q := r.URL.Query()
	prefer := r.Header.Get("Prefer")
	representation := strings.Contains(prefer, "return=representation")

	switch r.Method {
	case http.MethodGet:
		rows, e := s.match(table, q)
		if e != nil {
			return 0, nil, false, e
		}
		if e := sortRows(rows, q.Get("order")); e != nil {
			return 0, nil, false, e
		}
		rows = project(rows, q.Get("select"))
		if r.Header.Get("Accept") == objectMedia {
			if len(rows) != 1 {
				return 0, nil, false, fail(http.StatusNotAcceptable, "PGRST116",
					"JSON object requested, multiple (or no) rows returned")
			}
			return http.StatusOK, rows[0], false, nil
		}
		return http.StatusOK, rows, false, nil

	case http.MethodPost:
		incoming, e := decodeRows(body)
		if e != nil {
			return 0, nil, false, e
		}
		upsert := strings.Contains(prefer, "resolution=merge-duplicates")
		next := cloneRows(s.tables[table])
		for _, in := range incoming {
			i := indexByID(next, in["id"])
			switch {
			case i < 0:
				next = append(next, in)
			case upsert:
				merged := maps.Clone(next[i])
				maps.Copy(merged, in)
				next[i] = merged
			default:
				return 0, nil, false, fail(http.StatusConflict, "23505",
					fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table))
			}
		}
		if e := s.commit(table, next); e != nil {
			return 0, nil, false, e
		}
		if representation {
			return http.StatusCreated, incoming, len(incoming) > 0, nil
		}
		return http.StatusCreated, nil, len(incoming) > 0, nil

	case http.MethodPatch:
		var patch row
		if err := json.Unmarshal(body, &patch); err != nil {
			return 0, nil, false, fail(http.StatusBadRequest, "PGRST102", "invalid JSON body")
		}
		hits, e := s.matchIndexes(table, q)
		if e != nil {
			return 0, nil, false, e
		}
		next := cloneRows(s.tables[table])
		updated := make([]row, 0, len(hits))
		for _, i := range hits {
			maps.Copy(next[i], patch)
			updated = append(updated, next[i])
		}
		if e := s.commit(table, next); e != nil {
			return 0, nil, false, e
		}
		if representation {
			return http.StatusOK, cloneRows(updated), len(hits) > 0, nil
		}
		return http.StatusNoContent, nil, len(hits) > 0, nil

	case http.MethodDelete:
		if len(filters(q)) == 0 {
			return 0, nil, false, fail(http.StatusBadRequest, "21000", "DELETE requires a WHERE clause")
		}
		hits, e := s.matchIndexes(table, q)
		if e != nil {
			return 0, nil, false, e
		}
		removed := make([]row, 0, len(hits))
		next := make([]row, 0, len(s.tables[table]))
		for i, rw := range s.tables[table] {
			if slices.Contains(hits, i) {
				removed = append(removed, rw)
				continue
			}
			next = append(next, rw)
		}
		s.tables[table] = next
		if table == "collections" {
			s.detachPrompts(removed)
		}
		if representation {
			return http.StatusOK, removed, len(removed) > 0, nil
		}
		return http.StatusNoContent, nil, len(removed) > 0, nil
	}

	return 0, nil, false, fail(http.StatusMethodNotAllowed, "", "method not allowed")
}

// commit checks constraints on the candidate table and stores it.
func (s *Server) commit(table string, next []row) *serviceError {
	seen := make(map[string]bool, len(next))
	for _, rw := range next {
		id := str(rw["id"])
		if seen[id] {
			return fail(http.StatusConflict, "23505", fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table))
		}
		seen[id] = true
	}

	switch table {
	case "tags":
		names := make(map[string]bool, len(next))
		for _, rw := range next {
			key := prompt.FoldTagName(str(rw["name"]))
			if names[key] {
				return fail(http.StatusConflict, "23505", "duplicate key value violates unique constraint \"tags_name_key\"")
			}
			names[key] = true
		}
	case "prompts":
		for _, rw := range next {
			if cid, ok := rw["collection_id"]; ok && cid != nil {
				if indexByID(s.tables["collections"], cid) < 0 {
					return fail(http.StatusConflict, "23503",
						"insert or update on table \"prompts\" violates foreign key constraint \"prompts_collection_id_fkey\"")
				}
			}
			if n, ok := rw["copy_count"].(float64); ok && n < 0 {
				return fail(http.StatusBadRequest, "23514", "new row for relation \"prompts\" violates check constraint \"prompts_copy_count_check\"")
			}
		}
	}

	s.tables[table] = next
	return nil
}

// detachPrompts mirrors ON DELETE SET NULL on prompts.collection_id.
func (s *Server) detachPrompts(collections []row) {
	for _, c := range collections {
		for _, p := range s.tables["prompts"] {
			if p["collection_id"] != nil && str(p["collection_id"]) == str(c["id"]) {
				p["collection_id"] = nil
			}
		}
	}
}

func (s *Server) match(table string, q url.Values) ([]row, *serviceError) {
	idx, e := s.matchIndexes(table, q)
	if e != nil {
		return nil, e
	}
	out := make([]row, len(idx))
	for i, j := range idx {
		out[i] = maps.Clone(s.tables[table][j])
	}
	return out, nil
}

func (s *Server) matchIndexes(table string, q url.Values) ([]int, *serviceError) {
	fs := filters(q)
	var out []int
	for i, rw := range s.tables[table] {
		ok := true
		for col, exprs := range fs {
			for _, expr := range exprs {
				m, e := matches(rw[col], expr)
				if e != nil {
					return nil, e
				}
				ok = ok && m
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func filters(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		switch k {
		case "select", "order", "on_conflict", "limit", "offset":
			continue
		}
		out[k] = v
	}
	return out
}

func matches(v any, expr string) (bool, *serviceError) {
	op, arg, _ := strings.Cut(expr, ".")
	switch op {
	case "eq":
		return v != nil && str(v) == arg, nil
	case "neq":
		return v != nil && str(v) != arg, nil
	case "is":
		if arg == "null" {
			return v == nil, nil
		}
	case "not":
		if arg == "is.null" {
			return v != nil, nil
		}
	case "cs":
		list, _ := v.([]any)
		for _, want := range strings.Split(strings.Trim(arg, "{}"), ",") {
			if !slices.ContainsFunc(list, func(x any) bool { return str(x) == want }) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fail(http.StatusBadRequest, "PGRST100", fmt.Sprintf("unsupported filter %q", expr))
}

func sortRows(rows []row, order string) *serviceError {
	if order == "" {
		return nil
	}
	type key struct {
		col  string
		desc bool
	}
	var keys []key
	for _, part := range strings.Split(order, ",") {
		col, dir, _ := strings.Cut(part, ".")
		switch dir {
		case "", "asc":
			keys = append(keys, key{col: col})
		case "desc":
			keys = append(keys, key{col: col, desc: true})
		default:
			return fail(http.StatusBadRequest, "PGRST100", fmt.Sprintf("invalid order %q", part))
		}
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		for _, k := range keys {
			c := compare(a[k.col], b[k.col])
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

// compare orders values the way the columns are typed; nulls sort last.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch x := a.(type) {
	case float64:
		y, _ := b.(float64)
		return cmp.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		return cmp.Compare(strconv.FormatBool(x), strconv.FormatBool(y))
	case string:
		y := str(b)
		tx, errx := time.Parse(time.RFC3339Nano, x)
		ty, erry := time.Parse(time.RFC3339Nano, y)
		if errx == nil && erry == nil {
			return tx.Compare(ty)
		}
		return strings.Compare(x, y)
	}
	return strings.Compare(str(a), str(b))
}

func project(rows []row, sel string) []row {
	if sel == "" || sel == "*" {
		return rows
	}
	cols := strings.Split(sel, ",")
	out := make([]row, len(rows))
	for i, rw := range rows {
		p := make(row, len(cols))
		for _, c := range cols {
			if v, ok := rw[c]; ok {
				p[c] = v
			}
		}
		out[i] = p
	}
	return out
}

func decodeRows(body []byte) ([]row, *serviceError) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var rows []row
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fail(http.StatusBadRequest, "PGRST102", "invalid JSON body")
		}
		return rows, nil
	}
	var single row
	if err := json.Unmarshal(body, &single); err != nil || single == nil {
		return nil, fail(http.StatusBadRequest, "PGRST102", "invalid JSON body")
	}
	return []row{single}, nil
}

func cloneRows(rows []row) []row {
	out := make([]row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}

func indexByID(rows []row, id any) int {
	return slices.IndexFunc(rows, func(r row) bool { return str(r["id"]) == str(id) })
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// Realtime

type frame struct {
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload any     `json:"payload"`
	Ref     *string `json:"ref"`
}

func (s *Server) serveSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.sockets[ws] = make(map[string]bool)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sockets, ws)
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		var msg frame
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			return
		}
		switch msg.Event {
		case "phx_join":
			s.mu.Lock()
			s.sockets[ws][msg.Topic] = true
			s.mu.Unlock()
		case "phx_leave":
			s.mu.Lock()
			delete(s.sockets[ws], msg.Topic)
			s.mu.Unlock()
		case "heartbeat":
		default:
			continue
		}
		reply := frame{
			Topic:   msg.Topic,
			Event:   "phx_reply",
			Payload: map[string]any{"status": "ok", "response": map[string]any{}},
			Ref:     msg.Ref,
		}
		if err := websocket.JSON.Send(ws, reply); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(table, method string) {
	if !watched[table] {
		return
	}
	kind := map[string]string{
		http.MethodPost:   "INSERT",
		http.MethodPatch:  "UPDATE",
		http.MethodDelete: "DELETE",
	}[method]

	type target struct {
		conn  *websocket.Conn
		topic string
	}
	s.mu.Lock()
	var targets []target
	for c, topics := range s.sockets {
		for t := range topics {
			targets = append(targets, target{c, t})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		_ = websocket.JSON.Send(t.conn, frame{
			Topic: t.topic,
			Event: "postgres_changes",
			Payload: map[string]any{
				"data": map[string]any{"schema": "public", "table": table, "type": kind},
			},
		})
	}
}
