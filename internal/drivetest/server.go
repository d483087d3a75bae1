// Package drivetest provides an in-process fake of the Drive v3 files API and
// of an OAuth2 token endpoint, for package tests. It keeps a small file tree
// in memory, counts calls per operation, and can inject failure statuses.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FolderMimeType mirrors the remote folder tag.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootID is the implicit root folder.
const RootID = "root"

// Operation names for Calls.
const (
	OpList   = "list"
	OpGet    = "get"
	OpMedia  = "media"
	OpExport = "export"
	OpCreate = "create"
	OpUpload = "upload"
	OpDelete = "delete"
	OpToken  = "token"
)

// Credentials accepted by the token endpoint.
const (
	ValidCode         = "4/valid-code"
	ValidRefreshToken = "refresh-token-1"
)

// File is one remote object.
type File struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
	Content  []byte
	Exports  map[string][]byte
	Modified time.Time
}

// Server is the fake. Fields are guarded by mu; use the methods.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	files       map[string]*File
	order       []string
	pageSize    int
	failures    []int
	calls       map[string]int
	tokens      map[string]bool
	tokenSeq    int
	nextID      int
	malformed   bool
	omitRefresh bool
	requireAuth bool
	uploads     map[string]int
}

// New starts a fake server that is closed when the test ends. Drive calls
// require a bearer previously issued by IssueToken or the token endpoint.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		files:       make(map[string]*File),
		pageSize:    1000,
		calls:       make(map[string]int),
		tokens:      make(map[string]bool),
		requireAuth: true,
		uploads:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", s.drive(OpList, s.handleList))
	mux.HandleFunc("GET /drive/v3/files/{id}", s.drive(OpGet, s.handleGet))
	mux.HandleFunc("GET /drive/v3/files/{id}/export", s.drive(OpExport, s.handleExport))
	mux.HandleFunc("POST /drive/v3/files", s.drive(OpCreate, s.handleCreate))
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", s.drive(OpUpload, s.handleUpload))
	mux.HandleFunc("DELETE /drive/v3/files/{id}", s.drive(OpDelete, s.handleDelete))
	mux.HandleFunc("POST /token", s.handleToken)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// Endpoint is the Drive API base path to hand to the client.
func (s *Server) Endpoint() string {
	return s.URL + "/drive/v3/"
}

// TokenURL is the OAuth2 token endpoint.
func (s *Server) TokenURL() string {
	return s.URL + "/token"
}

// AuthURL is a consent URL; the fake does not serve it.
func (s *Server) AuthURL() string {
	return s.URL + "/auth"
}

// SetPageSize caps the number of entries per listing page.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageSize = n
}

// SetRequireAuth toggles bearer checking on Drive calls.
func (s *Server) SetRequireAuth(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requireAuth = v
}

// SetMalformedTokens makes the token endpoint answer 200 with a body that
// carries no access token.
func (s *Server) SetMalformedTokens(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.malformed = v
}

// SetOmitRefreshToken makes the code exchange answer without a refresh
// token, as the real endpoint does on re-consent.
func (s *Server) SetOmitRefreshToken(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.omitRefresh = v
}

// FailNext makes the next Drive calls answer with the given statuses, one
// per call, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, statuses...)
}

// IssueToken returns a fresh valid access token.
func (s *Server) IssueToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issueLocked()
}

func (s *Server) issueLocked() string {
	s.tokenSeq++
	tok := fmt.Sprintf("access-%d", s.tokenSeq)
	s.tokens[tok] = true

	return tok
}

// ExpireTokens invalidates every access token issued so far.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.tokens)
}

// Calls returns how many requests hit op, failed ones included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

// ResetCalls zeroes all counters.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.calls)
}

// UploadsTo returns how many uploads targeted id.
func (s *Server) UploadsTo(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploads[id]
}

// AddFolder adds a folder under parent.
func (s *Server) AddFolder(parent, id, name string) {
	s.add(&File{ID: id, Name: name, MimeType: FolderMimeType, Parents: []string{parent}})
}

// AddFile adds a native file under parent.
func (s *Server) AddFile(parent, id, name string, content []byte) {
	s.add(&File{ID: id, Name: name, MimeType: "text/plain", Parents: []string{parent}, Content: content})
}

// AddDocument adds a service-internal document with its export renderings.
func (s *Server) AddDocument(parent, id, name, mimeType string, exports map[string][]byte) {
	s.add(&File{ID: id, Name: name, MimeType: mimeType, Parents: []string{parent}, Exports: exports})
}

func (s *Server) add(f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Modified.IsZero() {
		f.Modified = time.Date(2024, 6, 20, 14, 45, 0, 0, time.UTC)
	}

	s.files[f.ID] = f
	s.order = append(s.order, f.ID)
}

// Lookup returns a copy of the first child of parent named name.
func (s *Server) Lookup(parent, name string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		f := s.files[id]
		if f.Name == name && hasParent(f, parent) {
			return *f, true
		}
	}

	return File{}, false
}

// Get returns a copy of the file with id.
func (s *Server) Get(id string) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, false
	}

	return *f, true
}

// Children returns the names of parent's children in insertion order.
func (s *Server) Children(parent string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string

	for _, id := range s.order {
		if f := s.files[id]; hasParent(f, parent) {
			names = append(names, f.Name)
		}
	}

	return names
}

func hasParent(f *File, parent string) bool {
	for _, p := range f.Parents {
		if p == parent {
			return true
		}
	}

	return false
}

// drive wraps a Drive handler with call counting, failure injection and
// bearer checking.
func (s *Server) drive(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if op == OpGet && r.URL.Query().Get("alt") == "media" {
			op = OpMedia
		}

		s.mu.Lock()
		s.calls[op]++

		status := 0
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}

		authorized := !s.requireAuth || s.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		s.mu.Unlock()

		switch {
		case status != 0:
			writeError(w, status, "injected failure")
		case !authorized:
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
		default:
			h(w, r)
		}
	}
}

var (
	parentRe = regexp.MustCompile(`'([^']*)' in parents`)
	nameRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	m := parentRe.FindStringSubmatch(q)
	if m == nil {
		writeError(w, http.StatusBadRequest, "query without parent")
		return
	}

	parent := m[1]
	foldersOnly := strings.Contains(q, "and mimeType = '"+FolderMimeType+"'")
	filesOnly := strings.Contains(q, "and not mimeType = '"+FolderMimeType+"'")

	name, byName := "", false
	if nm := nameRe.FindStringSubmatch(q); nm != nil {
		name, byName = unescapeQuery(nm[1]), true
	}

	s.mu.Lock()

	var matched []*File

	for _, id := range s.order {
		f := s.files[id]

		switch {
		case !hasParent(f, parent):
		case foldersOnly && f.MimeType != FolderMimeType:
		case filesOnly && f.MimeType == FolderMimeType:
		case byName && f.Name != name:
		default:
			matched = append(matched, f)
		}
	}

	size := s.pageSize
	s.mu.Unlock()

	if ps, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && ps > 0 && ps < size {
		size = ps
	}

	offset := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "offset-"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad page token")
			return
		}

		offset = n
	}

	end := min(offset+size, len(matched))
	if offset > end {
		offset = end
	}

	resp := map[string]any{"files": toJSONList(matched[offset:end])}
	if end < len(matched) {
		resp["nextPageToken"] = fmt.Sprintf("offset-%d", end)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, ok := s.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	if r.URL.Query().Get("alt") != "media" {
		writeJSON(w, http.StatusOK, toJSON(&f))
		return
	}

	if f.MimeType == FolderMimeType || strings.HasPrefix(f.MimeType, "application/vnd.google-apps") {
		writeError(w, http.StatusForbidden, "Only files with binary content can be downloaded")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Content)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, ok := s.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	data, ok := f.Exports[r.URL.Query().Get("mimeType")]
	if !ok {
		writeError(w, http.StatusBadRequest, "Export format not supported")
		return
	}

	w.Header().Set("Content-Type", r.URL.Query().Get("mimeType"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type createRequest struct {
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
	MimeType string   `json:"mimeType"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad body")
		return
	}

	if req.MimeType == "" {
		req.MimeType = "application/octet-stream"
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("new-%d", s.nextID)
	s.mu.Unlock()

	f := &File{ID: id, Name: req.Name, MimeType: req.MimeType, Parents: req.Parents}
	s.add(f)

	writeJSON(w, http.StatusOK, toJSON(f))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	content, err := readUploadBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	f, ok := s.files[id]
	if ok {
		f.Content = content
		s.uploads[id]++
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	writeJSON(w, http.StatusOK, toJSON(f))
}

// readUploadBody returns the media of a multipart/related or plain upload.
func readUploadBody(r *http.Request) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return io.ReadAll(r.Body)
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	var media []byte

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return media, nil
		}

		if err != nil {
			return nil, err
		}

		// The first part is the JSON metadata, the last one the media.
		media, err = io.ReadAll(part)
		if err != nil {
			return nil, err
		}
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	_, ok := s.files[id]
	if ok {
		delete(s.files, id)

		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[OpToken]++
	malformed := s.malformed
	omitRefresh := s.omitRefresh
	s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	if malformed {
		writeJSON(w, http.StatusOK, map[string]string{"token_type": "Bearer"})
		return
	}

	resp := map[string]any{"token_type": "Bearer", "expires_in": 3599}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != ValidCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}

		if !omitRefresh {
			resp["refresh_token"] = ValidRefreshToken
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != ValidRefreshToken {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	resp["access_token"] = s.issueLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func unescapeQuery(s string) string {
	var b strings.Builder

	escaped := false

	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}

		escaped = false

		b.WriteRune(r)
	}

	return b.String()
}

func toJSON(f *File) map[string]any {
	m := map[string]any{
		"id":           f.ID,
		"name":         f.Name,
		"mimeType":     f.MimeType,
		"modifiedTime": f.Modified.Format(time.RFC3339),
	}

	if f.MimeType != FolderMimeType {
		m["size"] = strconv.Itoa(len(f.Content))
	}

	return m
}

func toJSONList(files []*File) []map[string]any {
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, toJSON(f))
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
		},
	})
}
