package store

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
	"github.com/rs/zerolog/log"
)

// RemoteStore talks to a document gateway: HTTP for reads and writes, a websocket
// per subscription for change notifications.
type RemoteStore struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer

	mu    sync.RWMutex
	token string
}

type streamMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewRemoteStore(baseURL string) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SetToken sets the session token sent with every request.
func (s *RemoteStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *RemoteStore) authHeader() http.Header {
	h := http.Header{}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

func (s *RemoteStore) docURL(collection, id string) string {
	return fmt.Sprintf("%s/api/docs/%s/%s", s.baseURL, url.PathEscape(collection), url.PathEscape(id))
}

func (s *RemoteStore) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header = s.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("gateway %s %s: %d %s", method, target, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RemoteStore) Create(ctx context.Context, collection, id string, doc Document) error {
	return s.do(ctx, http.MethodPut, s.docURL(collection, id), doc, nil)
}

func (s *RemoteStore) ReadOnce(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	if err := s.do(ctx, http.MethodGet, s.docURL(collection, id), nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *RemoteStore) WritePartial(ctx context.Context, collection, id string, fields Fields) error {
	return s.do(ctx, http.MethodPatch, s.docURL(collection, id), fields, nil)
}

func (s *RemoteStore) Subscribe(ctx context.Context, collection, id string, onChange func(Document), onError func(error)) (Unsubscribe, error) {
	wsURL := strings.Replace(s.baseURL, "http", "ws", 1) +
		fmt.Sprintf("/ws/docs/%s/%s", url.PathEscape(collection), url.PathEscape(id))

	conn, _, err := s.dialer.DialContext(ctx, wsURL, s.authHeader())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", key(collection, id), err)
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		})
	}

	closed := func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	go func() {
		defer unsubscribe()
		for {
			var msg streamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !closed() {
					onError(fmt.Errorf("subscription %s: %w", key(collection, id), err))
				}
				return
			}
			if closed() {
				return
			}
			switch msg.Type {
			case "snapshot":
				var doc Document
				if err := json.Unmarshal(msg.Payload, &doc); err != nil {
					log.Warn().Err(err).Str("key", key(collection, id)).Msg("dropping undecodable snapshot")
					continue
				}
				onChange(doc)
			case "error":
				var reason string
				_ = json.Unmarshal(msg.Payload, &reason)
				onError(errors.New(reason))
				return
			}
		}
	}()

	return unsubscribe, nil
}

// SessionGrant is the gateway's answer to a session request.
type SessionGrant struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

// OpenSession asks the gateway for a session token and keeps it for later calls.
func (s *RemoteStore) OpenSession(ctx context.Context, displayName string) (SessionGrant, error) {
	var grant SessionGrant
	body := map[string]string{"displayName": displayName}
	if err := s.do(ctx, http.MethodPost, s.baseURL+"/api/auth/session", body, &grant); err != nil {
		return grant, fmt.Errorf("open session: %w", err)
	}
	if grant.Token == "" {
		return grant, errors.New("open session: gateway returned no token")
	}
	s.SetToken(grant.Token)
	return grant, nil
}
