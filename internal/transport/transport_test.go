package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"letta-mcp-server/internal/config"
	"letta-mcp-server/internal/letta/lettatest"
	"letta-mcp-server/internal/observability"
	"letta-mcp-server/internal/routers"
	"letta-mcp-server/internal/server"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testToken = "s3cret-token"

func newTestServer(t *testing.T, tokenHash string) *httptest.Server {
	t.Helper()
	backend := lettatest.NewServer(t)
	all, err := routers.NewAll(backend.Client(t), routers.Options{})
	require.NoError(t, err)
	s, err := server.New(all, server.Options{})
	require.NoError(t, err)

	cfg := config.DefaultConfig().Server
	cfg.AuthTokenHash = tokenHash
	h := NewHTTP(cfg, s, HTTPOptions{
		Metrics: observability.NewMetrics(),
		Health:  func() map[string]interface{} { return map[string]interface{}{"backend": "closed"} },
	})

	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func rpcRequest(method string, params interface{}) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, config.ServiceName, health["server"])
	assert.Equal(t, float64(7), health["tools"])
	assert.Equal(t, "closed", health["backend"])

	resp, _ = get(t, ts.URL+"/ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = get(t, ts.URL+"/docs/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<table>")

	resp, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "http_requests_total")

	resp, _ = get(t, ts.URL+"/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRPCEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp, out := post(t, ts.URL+"/mcp", "", rpcRequest("tools/list", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	tools := out["result"].(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, tools, 7)

	_, out = post(t, ts.URL+"/mcp", "", rpcRequest("tools/call", map[string]interface{}{
		"name":      routers.JobMonitorName,
		"arguments": map[string]interface{}{"operation": "list"},
	}))
	result := out["result"].(map[string]interface{})
	assert.NotEqual(t, true, result["isError"])
	text := result["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, `"success": true`)
}

func TestRPCEndpoint_ParseError(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToolEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		tool   string
		args   map[string]interface{}
		status int
		code   string
	}{
		{
			name:   "success",
			tool:   routers.JobMonitorName,
			args:   map[string]interface{}{"operation": "list"},
			status: http.StatusOK,
		},
		{
			name:   "missing field",
			tool:   routers.JobMonitorName,
			args:   map[string]interface{}{"operation": "get"},
			status: http.StatusBadRequest,
			code:   "MISSING_FIELD",
		},
		{
			name:   "not implemented",
			tool:   routers.ToolManagerName,
			args:   map[string]interface{}{"operation": "generate_schema"},
			status: http.StatusNotImplemented,
			code:   "NOT_IMPLEMENTED",
		},
		{
			name:   "unknown tool",
			tool:   "letta_unknown",
			args:   map[string]interface{}{"operation": "list"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, ts.URL+"/tools/"+tt.tool, "", tt.args)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.code == "" {
				assert.Equal(t, true, out["success"])
				return
			}
			assert.Equal(t, tt.code, out["error"].(map[string]interface{})["code"])
		})
	}
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, string(hash))

	resp, out := post(t, ts.URL+"/mcp", "", rpcRequest("tools/list", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out["error"].(map[string]interface{})["code"])

	resp, _ = post(t, ts.URL+"/mcp", "wrong", rpcRequest("tools/list", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, _ = post(t, ts.URL+"/mcp", testToken, rpcRequest("tools/list", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer ", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(r), tt.header)
	}
}

func TestWebSocket(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, string(hash))
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer " + testToken}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// A notification carries no id and gets no reply
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "method": "tools/list"}))
	require.NoError(t, conn.WriteJSON(rpcRequest("tools/list", nil)))

	var out map[string]interface{}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, float64(1), out["id"])
	tools := out["result"].(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, tools, 7)
}
