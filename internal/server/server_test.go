package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"resumeforge/internal/ai"
	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/ingest"
	"resumeforge/internal/jobdesc"
	"resumeforge/internal/prompt"
	"resumeforge/internal/types"
	"resumeforge/internal/workflow"
)

const (
	generateReply = "```json\n" + `{"resumeText":"JANE DOE\nPlatform Engineer","atsKeywords":["Go"],"optimizationNotes":"Tightened summary"}` + "\n```"
	analyzeReply  = `{"overallScore":82,"atsCompatibility":80,"contentQuality":85,"formatting":78,` +
		`"keywordOptimization":75,"strengths":["Clear"],"improvements":[],"missingKeywords":[],"summary":"Solid"}`
)

// fakeClient answers per task kind. When gate is set every call waits on it.
type fakeClient struct {
	mu       sync.Mutex
	requests []ai.Request
	gate     chan struct{}
}

func (f *fakeClient) Generate(ctx context.Context, req ai.Request) (*ai.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text := generateReply
	if req.Kind == types.TaskAnalyze {
		text = analyzeReply
	}
	return &ai.Reply{Blocks: []ai.Block{{Type: ai.BlockText, Text: text}}}, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) lastRequest() ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestServer(t *testing.T, client ai.Client, mutate func(*ServerConfig)) *Server {
	t.Helper()

	builder, err := prompt.NewBuilder(prompt.Templates{})
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	logger := errors.Discard()
	cfg := ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		Version:        "test",
		MaxRequestSize: 1 << 20,
		SessionTTL:     time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewServer(&config.Config{}, cfg, Dependencies{
		Builder:  builder,
		Client:   client,
		Ingestor: ingest.New(1<<20, logger),
		Fetcher:  jobdesc.New(config.JobFetchConfig{Timeout: 5 * time.Second}, logger),
	}, logger)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[SessionResponse](t, rec).ID
}

func waitForPhase(t *testing.T, h http.Handler, id string, kind types.TaskKind, want workflow.Phase) workflow.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/"+string(kind), nil)
		state := decode[workflow.State](t, rec)
		if state.Phase == want {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase %s never reached, last state %+v", want, state)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, nil).Handler()

	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	session := decode[SessionResponse](t, rec)
	if session.Generate.Phase != workflow.PhaseIdle || session.Analyze.Phase != workflow.PhaseIdle {
		t.Errorf("new session not idle: %+v", session)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown session", "/api/sessions/nope", http.StatusNotFound},
		{"unknown kind", "/api/sessions/" + id + "/tailor", http.StatusNotFound},
		{"kind state", "/api/sessions/" + id + "/analyze", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doJSON(t, h, http.MethodGet, tt.path, nil); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestGenerateRunAndExport(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, nil).Handler()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", GenerateRequest{
		GenerateFields: types.GenerateFields{FullName: "Jane  Doe", Email: "jane@example.com"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if state := decode[workflow.State](t, rec); state.Phase != workflow.PhaseLoading {
		t.Errorf("start answered %s, want loading", state.Phase)
	}

	state := waitForPhase(t, h, id, types.TaskGenerate, workflow.PhaseSuccess)
	if state.Result == nil || state.Result.Generate == nil || state.Result.Generate.ATSKeywords[0] != "Go" {
		t.Fatalf("unexpected result %+v", state.Result)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/generate/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Jane_Doe_Resume.txt"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "JANE DOE\nPlatform Engineer" {
		t.Errorf("export body = %q", rec.Body.String())
	}
}

func TestExportBeforeSuccess(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, nil).Handler()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/generate/export", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGenerateRejections(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, nil).Handler()
	id := createSession(t, h)

	tests := []struct {
		name     string
		body     any
		want     int
		wantCode string
	}{
		{
			name:     "guard rejects blank email",
			body:     GenerateRequest{GenerateFields: types.GenerateFields{FullName: "Jane", Email: "   "}},
			want:     http.StatusUnprocessableEntity,
			wantCode: errors.ErrCodeWorkflowGuard,
		},
		{
			name:     "validator rejects missing name",
			body:     GenerateRequest{GenerateFields: types.GenerateFields{Email: "jane@example.com"}},
			want:     http.StatusUnprocessableEntity,
			wantCode: errors.ErrCodeInvalidRequest,
		},
		{
			name: "validator rejects bad job url",
			body: GenerateRequest{
				GenerateFields: types.GenerateFields{FullName: "Jane", Email: "jane@example.com"},
				JobURL:         "not a url",
			},
			want:     http.StatusUnprocessableEntity,
			wantCode: errors.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if resp := decode[ErrorResponse](t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}

	// The controller never left idle
	rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/generate", nil)
	if state := decode[workflow.State](t, rec); state.Phase != workflow.PhaseIdle || state.Run != 0 {
		t.Errorf("rejected starts changed the state: %+v", state)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/generate", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec.Code)
	}
}

func TestGenerateBusy(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	h := newTestServer(t, client, nil).Handler()
	id := createSession(t, h)
	body := GenerateRequest{GenerateFields: types.GenerateFields{FullName: "Jane", Email: "jane@example.com"}}

	if rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first start status = %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != errors.ErrCodeWorkflowBusy {
		t.Errorf("code = %q", resp.Code)
	}

	// analyze is independent of a loading generate
	req := uploadRequest(t, "/api/sessions/"+id+"/analyze", "cv.pdf", []byte("%PDF-1.4\n%%EOF"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("analyze while generate loads = %d, want 202", rec.Code)
	}

	close(client.gate)
	waitForPhase(t, h, id, types.TaskGenerate, workflow.PhaseSuccess)
	waitForPhase(t, h, id, types.TaskAnalyze, workflow.PhaseSuccess)
}

func TestGenerateFetchesJobURL(t *testing.T) {
	posting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><nav>Menu</nav><main><h1>Staff Go Engineer</h1></main></body></html>`))
	}))
	defer posting.Close()

	client := &fakeClient{}
	h := newTestServer(t, client, nil).Handler()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", GenerateRequest{
		GenerateFields: types.GenerateFields{FullName: "Jane", Email: "jane@example.com"},
		JobURL:         posting.URL + "/jobs/1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	waitForPhase(t, h, id, types.TaskGenerate, workflow.PhaseSuccess)

	instruction := client.lastRequest().Instruction
	if !strings.Contains(instruction, "Staff Go Engineer") || !strings.Contains(instruction, prompt.JobDescriptionClause) {
		t.Errorf("fetched posting not in instruction:\n%s", instruction)
	}
}

func TestGenerateJobURLFailure(t *testing.T) {
	posting := httptest.NewServer(http.NotFoundHandler())
	defer posting.Close()

	h := newTestServer(t, &fakeClient{}, nil).Handler()
	id := createSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", GenerateRequest{
		GenerateFields: types.GenerateFields{FullName: "Jane", Email: "jane@example.com"},
		JobURL:         posting.URL,
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != errors.ErrCodeJobFetchFailed {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	client := &fakeClient{}
	h := newTestServer(t, client, nil).Handler()
	id := createSession(t, h)

	tests := []struct {
		name     string
		filename string
		content  []byte
		want     int
	}{
		{"unsupported extension", "cv.txt", []byte("plain"), http.StatusUnsupportedMediaType},
		{"content does not match extension", "cv.pdf", []byte("PK\x03\x04zip"), http.StatusUnsupportedMediaType},
		{"empty document", "cv.pdf", []byte{}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "/api/sessions/"+id+"/analyze", tt.filename, tt.content))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/analyze", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/api/sessions/"+id+"/analyze", "cv.pdf", []byte("%PDF-1.4\n%%EOF")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	state := waitForPhase(t, h, id, types.TaskAnalyze, workflow.PhaseSuccess)
	if state.Result.Analyze.OverallScore != 82 {
		t.Errorf("overallScore = %d", state.Result.Analyze.OverallScore)
	}
	if att := client.lastRequest().Attachment; att == nil || att.MediaType != types.MediaTypePDF || att.Name != "cv.pdf" {
		t.Errorf("attachment = %+v", att)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, func(c *ServerConfig) {
		c.APIKeys = []string{"secret-key-123"}
	}).Handler()

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": "secret-key-123"}, http.StatusCreated},
		{"bearer token", map[string]string{"Authorization": "Bearer secret-key-123"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	// health stays public
	if rec := doJSON(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestSetAPIKeysRotation(t *testing.T) {
	s := newTestServer(t, &fakeClient{}, func(c *ServerConfig) { c.APIKeys = []string{"old-key"} })
	h := s.Handler()

	s.SetAPIKeys([]string{"new-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("X-API-Key", "old-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old key status = %d, want 401", rec.Code)
	}

	req.Header.Set("X-API-Key", "new-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("new key status = %d, want 201", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, func(c *ServerConfig) {
		c.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true}
	}).Handler()

	if rec := doJSON(t, h, http.MethodPost, "/api/sessions", nil); rec.Code != http.StatusCreated {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/sessions", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}

func TestStats(t *testing.T) {
	h := newTestServer(t, &fakeClient{}, nil).Handler()
	createSession(t, h)

	rec := doJSON(t, h, http.MethodGet, "/stats", nil)
	stats := decode[map[string]any](t, rec)
	server, _ := stats["server"].(map[string]any)
	if server["active_sessions"] != float64(1) {
		t.Errorf("active_sessions = %v", server["active_sessions"])
	}
}

func TestWatchStreamsStates(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	s := newTestServer(t, client, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	h := s.Handler()

	id := createSession(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/generate/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	}()

	readState := func() workflow.State {
		t.Helper()
		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			t.Fatal(err)
		}
		var state workflow.State
		if err := conn.ReadJSON(&state); err != nil {
			t.Fatalf("read: %v", err)
		}
		return state
	}

	if state := readState(); state.Phase != workflow.PhaseIdle {
		t.Fatalf("first state = %s, want idle", state.Phase)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", GenerateRequest{
		GenerateFields: types.GenerateFields{FullName: "Jane", Email: "jane@example.com"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}
	if state := readState(); state.Phase != workflow.PhaseLoading {
		t.Fatalf("second state = %s, want loading", state.Phase)
	}

	close(client.gate)
	if state := readState(); state.Phase != workflow.PhaseSuccess || state.Result == nil {
		t.Fatalf("final state = %+v, want success", state)
	}
}

func TestSessionStoreSweep(t *testing.T) {
	store := NewSessionStore(time.Minute, errors.Discard())
	now := time.Now()
	store.now = func() time.Time { return now }

	idle := store.Create()
	busy := store.Create()
	if _, err := busy.Generate.Start(types.NewGenerateRequest(types.GenerateFields{FullName: "J", Email: "j@x"})); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("Sweep() removed %d, want 1", removed)
	}
	if _, ok := store.Get(idle.ID); ok {
		t.Error("idle session survived its TTL")
	}
	if _, ok := store.Get(busy.ID); !ok {
		t.Error("loading session was dropped")
	}
}
