package execute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSubmitsScript(t *testing.T) {
	var got request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"output":"ok"}`))
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "id", "secret")
	out, err := c.Run(context.Background(), "python3", "print(1)", "stdin-data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":"ok"}`, string(out))

	assert.Equal(t, "print(1)", got.Script)
	assert.Equal(t, "python3", got.Language)
	assert.Equal(t, "3", got.VersionIndex)
	assert.Equal(t, "id", got.ClientID)
	assert.Equal(t, "secret", got.ClientSecret)
	assert.Equal(t, "stdin-data", got.Stdin)
}

func TestRunUnknownLanguage(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "id", "secret")
	_, err := c.Run(context.Background(), "brainfuck", "x", "")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestRunMissingCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "")
	_, err := c.Run(context.Background(), "python3", "x", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRunUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "id", "secret")
	_, err := c.Run(context.Background(), "go", "x", "")
	assert.Error(t, err)
}

func TestLanguagesCovered(t *testing.T) {
	langs := Languages()
	assert.Contains(t, langs, "python3")
	assert.Contains(t, langs, "go")
	assert.Contains(t, langs, "rust")
}
