package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTransportUnavailable means neither transport could be established this
// attempt. The session's retry loop consumes it; it is never fatal.
var ErrTransportUnavailable = errors.New("transport unavailable")

var errTransportClosed = errors.New("transport closed")

// transport is one established connection to the server, whatever the
// underlying mechanism. read blocks until a frame arrives or the connection
// dies.
type transport interface {
	read() ([]byte, error)
	write(data []byte) error
	close() error
}

type wsTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func dialWS(ctx context.Context, serverURL string, timeout time.Duration) (transport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"

	d := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) write(data []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) close() error {
	return t.conn.Close()
}

// pollTransport emulates a stream over plain request/response: frames are
// pulled in batches from the events endpoint and replayed one at a time.
// Its context dies in close(), which aborts any in-flight long poll.
type pollTransport struct {
	base  string
	sid   string
	open  *http.Client
	poll  *http.Client
	queue [][]byte

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

const pollReadTimeout = 90 * time.Second

func dialPoll(ctx context.Context, serverURL string, timeout time.Duration) (transport, error) {
	base := strings.TrimRight(serverURL, "/")
	open := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/poll", nil)
	if err != nil {
		return nil, err
	}
	resp, err := open.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll open returned %d", resp.StatusCode)
	}

	var body struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode poll open: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	return &pollTransport{
		base:   base,
		sid:    body.ConnectionID,
		open:   open,
		poll:   &http.Client{Timeout: pollReadTimeout},
		ctx:    readCtx,
		cancel: cancel,
	}, nil
}

func (t *pollTransport) read() ([]byte, error) {
	for {
		if len(t.queue) > 0 {
			next := t.queue[0]
			t.queue = t.queue[1:]
			return next, nil
		}
		if t.ctx.Err() != nil {
			return nil, errTransportClosed
		}

		req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.base+"/api/poll/"+t.sid+"/events", nil)
		if err != nil {
			return nil, err
		}
		resp, err := t.poll.Do(req)
		if err != nil {
			if t.ctx.Err() != nil {
				return nil, errTransportClosed
			}
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("poll events returned %d", resp.StatusCode)
		}
		var body struct {
			Events []json.RawMessage `json:"events"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode poll events: %w", err)
		}
		for _, e := range body.Events {
			t.queue = append(t.queue, []byte(e))
		}
	}
}

func (t *pollTransport) write(data []byte) error {
	resp, err := t.open.Post(t.base+"/api/poll/"+t.sid+"/send", "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll send returned %d", resp.StatusCode)
	}
	return nil
}

// close aborts the in-flight long poll and tells the server the session is
// done; peers then see the disconnect right away instead of at expiry.
func (t *pollTransport) close() error {
	t.once.Do(func() {
		t.cancel()
		req, err := http.NewRequest(http.MethodDelete, t.base+"/api/poll/"+t.sid, nil)
		if err != nil {
			return
		}
		resp, err := t.open.Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	})
	return nil
}
