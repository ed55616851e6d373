package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeisdemode/cephiq-lite/internal/infra"
)

// sseConnectBackoff is the legacy-SSE reconnect schedule: retry a failed
// session handshake at these intervals before giving up.
var sseConnectBackoff = []time.Duration{
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

const (
	sseEventStreamTimeout = 60 * time.Second
	ssePostTimeout        = 30 * time.Second
	sseFatalErrorCode     = -32000
)

// sseSessions coalesces concurrent first-connect attempts for the same
// base URL so only one handshake runs at a time, matching the spec's
// mutex-guarded session cache (the Python original's unlocked module-level
// dict has a bare TOCTOU race under concurrent callers).
var sseSessions infra.Group[string, *sseSession]

// sseSession is the duplex bridge state for one legacy-SSE MCP server: a
// long-lived GET that receives the one-shot "endpoint" event plus all
// subsequent JSON-RPC traffic, and a POST client that sends client-to-server
// messages once that endpoint is known.
type sseSession struct {
	baseURL string
	client  *http.Client

	endpointOnce sync.Once
	endpointCh   chan string
	messagesURL  string

	pending   map[any]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest

	closed    atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// SSETransport implements the MCP legacy Server-Sent Events transport: a
// GET event stream that hands back a one-shot "endpoint" URL, and a POST
// to that endpoint for every outgoing message.
type SSETransport struct {
	config  *ServerConfig
	logger  *slog.Logger
	session *sseSession
}

// NewSSETransport creates a new SSE transport.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	return &SSETransport{
		config: cfg,
		logger: slog.Default().With("mcp_server", cfg.ID, "transport", "sse"),
	}
}

// Connect establishes (or reuses) the duplex SSE session for this server's
// base URL, retrying the handshake on the legacy-SSE backoff schedule.
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for SSE transport")
	}

	sess, err, _ := sseSessions.Do(t.config.URL, func() (*sseSession, error) {
		return connectSSESession(ctx, t.config, t.logger)
	})
	if err != nil {
		return fmt.Errorf("sse connect: %w", err)
	}

	t.session = sess
	return nil
}

func connectSSESession(ctx context.Context, cfg *ServerConfig, logger *slog.Logger) (*sseSession, error) {
	var lastErr error
	for _, delay := range sseConnectBackoff {
		sess, err := dialSSESession(ctx, cfg, logger)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		logger.Warn("sse connect failed, retrying", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to MCP SSE at %s: %w", cfg.URL, lastErr)
}

func dialSSESession(ctx context.Context, cfg *ServerConfig, logger *slog.Logger) (*sseSession, error) {
	sess := &sseSession{
		baseURL:    cfg.URL,
		client:     &http.Client{Timeout: ssePostTimeout},
		endpointCh: make(chan string, 1),
		pending:    make(map[any]chan *JSONRPCResponse),
		events:     make(chan *JSONRPCNotification, 100),
		requests:   make(chan *JSONRPCRequest, 100),
		stopChan:   make(chan struct{}),
		logger:     logger,
	}

	sess.wg.Add(1)
	go sess.eventLoop(cfg)

	select {
	case endpoint := <-sess.endpointCh:
		sess.messagesURL = endpoint
		sess.endpointCh <- endpoint // leave it available for any late reader
		return sess, nil
	case <-ctx.Done():
		sess.Close()
		return nil, ctx.Err()
	case <-time.After(sseEventStreamTimeout):
		sess.Close()
		return nil, fmt.Errorf("timed out waiting for SSE endpoint event")
	}
}

// eventLoop keeps the SSE GET connection open for the lifetime of the
// session, resolving the one-shot "endpoint" event and forwarding every
// other event as a JSON-RPC message.
func (s *sseSession) eventLoop(cfg *ServerConfig) {
	defer s.wg.Done()

	eventClient := &http.Client{Timeout: sseEventStreamTimeout}

	req, err := http.NewRequest(http.MethodGet, s.baseURL, nil)
	if err != nil {
		s.logger.Error("failed to build sse request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := eventClient.Do(req)
	if err != nil {
		s.logger.Error("sse event processing failed", "error", err)
		s.synthesizeFatalError(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("sse stream returned status %d", resp.StatusCode)
		s.synthesizeFatalError(err)
		return
	}

	s.logger.Info("sse event processing started", "url", s.baseURL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		select {
		case <-s.stopChan:
			return
		default:
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			s.handleEvent(eventName, data)
			eventName = ""
		case line == "":
			eventName = ""
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("sse event processing failed", "error", err)
		s.synthesizeFatalError(err)
	}
}

// handleEvent resolves the one-shot endpoint rendezvous, or forwards a
// JSON-RPC payload to the response/request/event channels.
func (s *sseSession) handleEvent(eventName, data string) {
	if eventName == "endpoint" {
		endpoint := strings.TrimSpace(data)
		s.logger.Info("messages endpoint discovered", "endpoint", endpoint)
		s.endpointOnce.Do(func() {
			s.endpointCh <- endpoint
		})
		return
	}
	if data == "" {
		return
	}

	var probe struct {
		ID     any    `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		s.logger.Warn("failed to parse sse event", "error", err)
		return
	}

	if probe.Method != "" && probe.ID != nil {
		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(data), &req); err == nil {
			select {
			case s.requests <- &req:
			default:
				s.logger.Warn("request channel full, dropping")
			}
		}
		return
	}

	if probe.ID != nil {
		var resp JSONRPCResponse
		if err := json.Unmarshal([]byte(data), &resp); err == nil {
			s.pendingMu.Lock()
			if ch, ok := s.pending[normalizeID(resp.ID)]; ok {
				select {
				case ch <- &resp:
				default:
				}
				delete(s.pending, normalizeID(resp.ID))
			}
			s.pendingMu.Unlock()
		}
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal([]byte(data), &notif); err == nil && notif.Method != "" {
		select {
		case s.events <- &notif:
		default:
			s.logger.Warn("notification channel full, dropping")
		}
	}
}

// synthesizeFatalError delivers a -32000 JSON-RPC error to any pending
// callers when the event stream itself fails, matching the original's
// best-effort error propagation through the otherwise-closed channel.
func (s *sseSession) synthesizeFatalError(cause error) {
	errResp := &JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: sseFatalErrorCode, Message: cause.Error()},
	}
	s.pendingMu.Lock()
	for id, ch := range s.pending {
		select {
		case ch <- errResp:
		default:
		}
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
}

func normalizeID(id any) any {
	if f, ok := id.(float64); ok {
		return int64(f)
	}
	return id
}

// resolveMessagesURL joins the discovered endpoint path against the base
// URL's origin, matching the original's urljoin-against-origin behaviour.
func (s *sseSession) resolveMessagesURL() (string, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}

	ref, err := url.Parse(s.messagesURL)
	if err != nil {
		return "", fmt.Errorf("parse messages endpoint: %w", err)
	}

	return origin.ResolveReference(ref).String(), nil
}

// post sends one JSON-RPC message to the discovered messages endpoint,
// expecting the legacy-SSE 202 Accepted acknowledgement.
func (s *sseSession) post(ctx context.Context, headers map[string]string, payload []byte) error {
	target, err := s.resolveMessagesURL()
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, ssePostTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("message post failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *sseSession) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
}

// Close tears down the transport's reference to the shared session. The
// underlying SSE connection is left for other transports sharing the same
// base URL; it is only closed when its session is evicted from the cache.
func (t *SSETransport) Close() error {
	return nil
}

// Call sends a request and waits for a response via the message endpoint.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.session == nil {
		return nil, fmt.Errorf("not connected")
	}
	sess := t.session

	id := sess.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan *JSONRPCResponse, 1)
	sess.pendingMu.Lock()
	sess.pending[id] = respChan
	sess.pendingMu.Unlock()
	defer func() {
		sess.pendingMu.Lock()
		delete(sess.pending, id)
		sess.pendingMu.Unlock()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := sess.post(ctx, t.config.Headers, body); err != nil {
		return nil, err
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = ssePostTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-sess.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// Notify sends a notification (no response expected).
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if t.session == nil {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}

	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return t.session.post(ctx, t.config.Headers, body)
}

// Events returns the notification channel.
func (t *SSETransport) Events() <-chan *JSONRPCNotification {
	if t.session == nil {
		return nil
	}
	return t.session.events
}

// Requests returns the server-initiated request channel.
func (t *SSETransport) Requests() <-chan *JSONRPCRequest {
	if t.session == nil {
		return nil
	}
	return t.session.requests
}

// Respond sends a response to a server-initiated request.
func (t *SSETransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if t.session == nil {
		return fmt.Errorf("not connected")
	}

	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return t.session.post(ctx, t.config.Headers, body)
}

// Connected returns whether the underlying session's endpoint rendezvous
// has completed and the event loop has not torn it down.
func (t *SSETransport) Connected() bool {
	return t.session != nil && !t.session.closed.Load()
}
