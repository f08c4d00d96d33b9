package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pad/internal/execute"
)

func executeRouter(exec *execute.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/execute", handleExecute(exec))
	return r
}

func postExecute(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExecuteProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output":"1\n","statusCode":200}`))
	}))
	defer upstream.Close()

	r := executeRouter(execute.NewClient(upstream.URL, "id", "secret"))
	w := postExecute(t, r, `{"code":"print(1)","language":"python3"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"output"`)
}

func TestExecuteRejectsMissingFields(t *testing.T) {
	r := executeRouter(execute.NewClient("http://127.0.0.1:1", "id", "secret"))

	w := postExecute(t, r, `{"language":"python3"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postExecute(t, r, `{"code":"print(1)"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteRejectsUnknownLanguage(t *testing.T) {
	r := executeRouter(execute.NewClient("http://127.0.0.1:1", "id", "secret"))

	w := postExecute(t, r, `{"code":"x","language":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteRejectsMissingCredentials(t *testing.T) {
	r := executeRouter(execute.NewClient("http://127.0.0.1:1", "", ""))

	w := postExecute(t, r, `{"code":"x","language":"python3"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
