// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package statusfeed

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed feed connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// DialOptions configures a feed connection
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool // wss:// only
}

// Conn is a client connection to one feed endpoint
type Conn struct {
	conn   *websocket.Conn
	closed bool
}

// Dial connects to a /write or /status endpoint with optional HTTP Basic auth
func Dial(ctx context.Context, wsURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &Conn{conn: conn}, nil
}

// WritePayload sends one payload as a binary message
func (c *Conn) WritePayload(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ReadFrame blocks until the next status frame arrives. Non-binary messages are skipped.
func (c *Conn) ReadFrame() (Frame, error) {
	if c.closed {
		return Frame{}, ErrConnectionClosed
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed = true
			return Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

// Close sends a normal closure and closes the connection
func (c *Conn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
