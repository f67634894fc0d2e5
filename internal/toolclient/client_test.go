package toolclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"tools": []map[string]any{
				{"name": "findDocuments", "description": "find"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sekrit")
	specs, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "findDocuments", specs[0].Name)
}

func TestCallJoinsContentBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "listCollections", req["name"])
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Found 2 collections in the database"},
				{"type": "text", "text": `["defects", "equipments"]`},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res := c.Call(context.Background(), "call_abc", "listCollections", map[string]any{})
	assert.Equal(t, "call_abc", res.CallID)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "Found 2 collections in the database\n[\"defects\", \"equipments\"]", res.Text)
}

func TestCallErrorEnvelopeBecomesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Unknown tool: nope"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res := c.Call(context.Background(), "call_abc", "nope", map[string]any{})
	assert.Equal(t, 400, res.Status)
	assert.Equal(t, "Tool execution failed: 400 - Unknown tool: nope", res.Text)
}

func TestCallServerDownBecomesText(t *testing.T) {
	c := New("http://127.0.0.1:1", "")
	res := c.Call(context.Background(), "call_abc", "findDocuments", map[string]any{})
	assert.NotEmpty(t, res.Text)
	assert.Contains(t, res.Text, "Tool execution failed")
}

func TestCallTimeoutBecomesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithTimeouts(time.Second, 20*time.Millisecond))
	res := c.Call(context.Background(), "call_abc", "findDocuments", map[string]any{})
	assert.Equal(t, 504, res.Status)
	assert.Equal(t, "Tool findDocuments execution timeout", res.Text)
}

func TestCallGarbageBodyBecomesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>boom</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res := c.Call(context.Background(), "call_abc", "findDocuments", map[string]any{})
	assert.Equal(t, 500, res.Status)
	assert.Contains(t, res.Text, "Tool execution failed: 500")
}
