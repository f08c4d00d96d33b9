// Package execute calls a JDoodle-style remote code execution API.
package execute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrUnknownLanguage    = errors.New("unsupported language")
	ErrMissingCredentials = errors.New("execution credentials not configured")
)

// versionIndex the upstream API expects per language.
var languageVersions = map[string]string{
	"python3": "3",
	"java":    "3",
	"cpp":     "4",
	"nodejs":  "3",
	"c":       "4",
	"ruby":    "3",
	"go":      "3",
	"scala":   "3",
	"bash":    "3",
	"sql":     "3",
	"pascal":  "2",
	"csharp":  "3",
	"php":     "3",
	"swift":   "3",
	"rust":    "3",
	"r":       "3",
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

type request struct {
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Stdin        string `json:"stdin"`
}

// Run submits the script and returns the upstream response body verbatim;
// callers pass it through to the UI untouched.
func (c *Client) Run(ctx context.Context, language, script, stdin string) (json.RawMessage, error) {
	version, ok := languageVersions[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	body, err := json.Marshal(request{
		Script:       script,
		Language:     language,
		VersionIndex: version,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Stdin:        stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("encode execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call execute service: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read execute response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execute service returned %d", resp.StatusCode)
	}
	return out, nil
}

// Languages lists what Run accepts.
func Languages() []string {
	out := make([]string, 0, len(languageVersions))
	for lang := range languageVersions {
		out = append(out, lang)
	}
	return out
}
