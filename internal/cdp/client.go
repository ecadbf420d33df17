// Package cdp speaks the DevTools wire protocol: HTTP discovery of
// debugger URLs and WebSocket JSON-RPC command exchange with id
// correlation.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ysmood/gson"

	"github.com/GrindLabs/spectrum/internal/errors"
	"github.com/GrindLabs/spectrum/internal/logger"
)

// DefaultCommandTimeout bounds a single command round trip when the
// caller's context carries no earlier deadline.
const DefaultCommandTimeout = 10 * time.Second

// Request is an outgoing command envelope.
type Request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Error is the error payload of a failed command.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("CDP error %d: %s", e.Code, e.Message)
}

// frame is an incoming message: a command reply (has an id) or an event
// (has a method, no id).
type frame struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Client is a single WebSocket debugger connection. Command ids are
// allocated from a per-connection sequence starting at 1. A Client is not
// safe for concurrent use; callers open one per conversation.
type Client struct {
	conn    *websocket.Conn
	url     string
	nextID  int
	timeout time.Duration
	log     *logger.Logger
}

// Option tunes a Client.
type Option func(*Client)

// WithTimeout overrides the per-command deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger for command tracing.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Dial opens a WebSocket connection to a debugger URL.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Client, error) {
	c := &Client{
		url:     wsURL,
		nextID:  1,
		timeout: DefaultCommandTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: c.timeout,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Categorize(fmt.Errorf("dial %s: %w", wsURL, err), wsURL)
	}
	c.conn = conn

	return c, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// URL returns the debugger URL this client is attached to.
func (c *Client) URL() string {
	return c.url
}

// Call sends one command and blocks until the reply carrying its id
// arrives. Replies to other ids and event frames received in the meantime
// are skipped. An error payload in the reply surfaces as a Protocol error;
// a reply without a result yields an empty object.
func (c *Client) Call(ctx context.Context, method string, params any) (gson.JSON, error) {
	id := c.nextID
	c.nextID++

	req := Request{ID: id, Method: method, Params: params}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	deadline := c.deadline(ctx)
	started := time.Now()

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return gson.New(nil), c.transportError(ctx, "send "+method, err)
	}

	for {
		fr, err := c.readFrame(ctx, deadline, method)
		if err != nil {
			return gson.New(nil), err
		}

		if fr.ID != id {
			continue
		}

		c.log.CommandEvent(method, id, time.Since(started))

		if fr.Error != nil {
			return gson.New(nil), errors.NewProtocolError(c.url, method, fr.Error.Error())
		}
		if fr.Result == nil {
			return gson.NewFrom("{}"), nil
		}
		return gson.NewFrom(string(fr.Result)), nil
	}
}

// WaitEvent blocks until an event frame with the given method arrives and
// returns its params. Command replies received in the meantime are
// discarded.
func (c *Client) WaitEvent(ctx context.Context, method string) (gson.JSON, error) {
	deadline := c.deadline(ctx)

	for {
		fr, err := c.readFrame(ctx, deadline, method)
		if err != nil {
			return gson.New(nil), err
		}

		if fr.ID != 0 || fr.Method != method {
			continue
		}

		if fr.Params == nil {
			return gson.NewFrom("{}"), nil
		}
		return gson.NewFrom(string(fr.Params)), nil
	}
}

// readFrame reads and decodes the next message within the deadline.
func (c *Client) readFrame(ctx context.Context, deadline time.Time, op string) (*frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Categorize(err, c.url)
	}

	c.conn.SetReadDeadline(deadline)
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	var fr frame
	if err := json.Unmarshal(raw, &fr); err != nil {
		return nil, errors.NewProtocolError(c.url, op, fmt.Sprintf("malformed frame: %v", err))
	}

	return &fr, nil
}

// deadline computes the effective wall-clock deadline for one exchange:
// the per-command timeout, clipped by any earlier context deadline.
func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Categorize(ctxErr, c.url)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return errors.NewTimeoutError(c.url, op, "command reply deadline exceeded", err)
	}
	return errors.Categorize(fmt.Errorf("%s: %w", op, err), c.url)
}

// Invoke runs a single command on a fresh connection: dial, call, close.
// This mirrors the one-command-per-socket discipline the lifecycle uses
// for stateless commands.
func Invoke(ctx context.Context, wsURL, method string, params any, opts ...Option) (gson.JSON, error) {
	client, err := Dial(ctx, wsURL, opts...)
	if err != nil {
		return gson.New(nil), err
	}
	defer client.Close()

	return client.Call(ctx, method, params)
}
