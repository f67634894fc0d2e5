package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetry/fleetmetry/internal/ai"
	"github.com/fleetmetry/fleetmetry/internal/auth"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

type scriptedProvider struct {
	mu     sync.Mutex
	script []*ai.ModelResponse
	step   int
}

func (p *scriptedProvider) Generate(_ context.Context, _ []models.Message, _ []models.ToolSpec) (*ai.ModelResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.step >= len(p.script) {
		return p.script[len(p.script)-1], nil
	}
	resp := p.script[p.step]
	p.step++
	return resp, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type recordingRunner struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (r *recordingRunner) Call(_ context.Context, callID, _ string, arguments map[string]any) models.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, arguments)
	return models.ToolResult{CallID: callID, Text: "Found 2 documents", Status: http.StatusOK}
}

// blockingProvider parks the turn until released so tests can poke the
// session mid-turn.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Generate(_ context.Context, _ []models.Message, _ []models.ToolSpec) (*ai.ModelResponse, error) {
	close(p.started)
	<-p.release
	return &ai.ModelResponse{Type: ai.ResponseText, Text: "done"}, nil
}

func (p *blockingProvider) Name() string { return "blocking" }

type staticSessions struct {
	sessions map[string]*auth.Session
}

func (s *staticSessions) SessionByToken(_ context.Context, token string) (*auth.Session, error) {
	return s.sessions[token], nil
}

func testCatalog() []models.ToolSpec {
	return []models.ToolSpec{{
		Name:        "findDocuments",
		Description: "Search documents",
		InputSchema: models.ParameterSchema{Type: "object"},
	}}
}

func newTestServer(t *testing.T, provider ai.Provider, runner *recordingRunner, storeCfg StoreConfig) (*Server, *Store) {
	t.Helper()

	authorizer := auth.NewAuthorizer(&staticSessions{sessions: map[string]*auth.Session{
		"tok-1": {Token: "tok-1", User: auth.SessionUser{ID: "u1", IsActivated: true, State: "ACTIVE"}},
	}})
	store := NewStore(storeCfg)
	server := NewServer(ServerConfig{Port: 0, MaxIterations: 15}, store, authorizer, provider, runner, testCatalog())
	return server, store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("X-Workspace-Id", "fleet-west")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["sessionId"])
	return created["sessionId"]
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessageToolRoundTrip(t *testing.T) {
	provider := &scriptedProvider{script: []*ai.ModelResponse{
		{Type: ai.ResponseToolCall, ToolName: "findDocuments", ToolArgs: `{"collection":"equipments"}`},
		{Type: ai.ResponseText, Text: "You have 2 excavators."},
	}}
	runner := &recordingRunner{}
	server, _ := newTestServer(t, provider, runner, StoreConfig{})

	id := createSession(t, server.Handler())
	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "how many excavators?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You have 2 excavators.", resp.Response)
	assert.Equal(t, 2, resp.Iterations)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "fleet-west", runner.calls[0]["workspace_id"])
	assert.Equal(t, "equipments", runner.calls[0]["collection"])
}

func TestMessageRequiresBody(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())
	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownSession(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/nope/messages", messageRequest{UserMessage: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBusySessionRejected(t *testing.T) {
	server, store := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())
	session, ok := store.Get(id)
	require.True(t, ok)
	require.True(t, session.Acquire())
	defer session.Release()

	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClearAndSummaryRejectedDuringTurn(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}), release: make(chan struct{})}
	server, _ := newTestServer(t, provider, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())

	turnDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		turnDone <- doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "hi"})
	}()
	<-provider.started

	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/clear", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, server.Handler(), http.MethodGet, "/sessions/"+id+"/summary", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(provider.release)
	require.Equal(t, http.StatusOK, (<-turnDone).Code)

	rec = doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/clear", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitedSession(t *testing.T) {
	provider := &scriptedProvider{script: []*ai.ModelResponse{{Type: ai.ResponseText, Text: "ok"}}}
	server, _ := newTestServer(t, provider, &recordingRunner{}, StoreConfig{RatePerMinute: 0.001, RateBurst: 1})

	id := createSession(t, server.Handler())
	first := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "hi"})
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "again"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestWorkspaceMismatchForbidden(t *testing.T) {
	server, _ := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/summary", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("X-Workspace-Id", "fleet-east")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClearAndSummary(t *testing.T) {
	provider := &scriptedProvider{script: []*ai.ModelResponse{{Type: ai.ResponseText, Text: "12 loaders"}}}
	server, _ := newTestServer(t, provider, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())
	rec := doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/messages", messageRequest{UserMessage: "how many loaders?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server.Handler(), http.MethodGet, "/sessions/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 4, summary.TotalMessages)
	assert.Equal(t, 1, summary.UserMessages)
	assert.Equal(t, 2, summary.AssistantMessages)
	require.Len(t, summary.RecentTopics, 1)
	assert.Equal(t, "how many loaders?...", summary.RecentTopics[0])

	rec = doJSON(t, server.Handler(), http.MethodPost, "/sessions/"+id+"/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server.Handler(), http.MethodGet, "/sessions/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalMessages)
	assert.Equal(t, 0, summary.UserMessages)
}

func TestDeleteSession(t *testing.T) {
	server, store := newTestServer(t, &scriptedProvider{}, &recordingRunner{}, StoreConfig{})

	id := createSession(t, server.Handler())
	rec := doJSON(t, server.Handler(), http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())

	rec = doJSON(t, server.Handler(), http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScopedRunnerDoesNotOverrideWorkspace(t *testing.T) {
	base := &recordingRunner{}
	runner := &scopedRunner{base: base, workspace: "fleet-west"}

	runner.Call(context.Background(), "call_1", "findDocuments", map[string]any{"workspace_id": "explicit"})
	require.Len(t, base.calls, 1)
	assert.Equal(t, "explicit", base.calls[0]["workspace_id"])

	args := map[string]any{"collection": "defects"}
	runner.Call(context.Background(), "call_2", "findDocuments", args)
	assert.Equal(t, "fleet-west", base.calls[1]["workspace_id"])
	_, mutated := args["workspace_id"]
	assert.False(t, mutated)
}
