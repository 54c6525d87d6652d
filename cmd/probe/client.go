package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	httphandlers "pairline/internal/handlers/http"
	"pairline/internal/infrastructure/signal"

	"github.com/gorilla/websocket"
)

// inboundEvent is a server event with its payload left undecoded.
type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func guestLogin(ctx context.Context, server, name, gender string) (*httphandlers.TokenResponse, error) {
	body, err := json.Marshal(httphandlers.GuestRequest{DisplayName: name, Gender: gender})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/v1/auth/guest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guest login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("guest login: unexpected status %s", resp.Status)
	}

	var tokens httphandlers.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tokens, nil
}

// signalURL turns the HTTP base URL into the websocket endpoint.
func signalURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// signalClient serialises writes to the websocket.
type signalClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func dialSignal(ctx context.Context, server, token string) (*signalClient, error) {
	target, err := signalURL(server, token)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	return &signalClient{conn: conn}, nil
}

func (c *signalClient) send(msgType string, payload interface{}) error {
	msg := signal.SignalMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// sendSignal wraps data in the relay envelope.
func (c *signalClient) sendSignal(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.send(signal.MsgSignal, map[string]json.RawMessage{"data": raw})
}

// events pumps inbound events until the connection fails.
func (c *signalClient) events() (<-chan inboundEvent, <-chan error) {
	out := make(chan inboundEvent, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			var ev inboundEvent
			if err := c.conn.ReadJSON(&ev); err != nil {
				errc <- err
				return
			}
			out <- ev
		}
	}()
	return out, errc
}

func (c *signalClient) close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
