// File: protocol/handshake.go
// Package protocol provides native WebSocket handshake without HTTP dependency.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Negotiate reads the raw Upgrade request straight off the socket, parses the
// request line and headers by hand and computes Sec-WebSocket-Accept per
// RFC 6455 section 1.3. Each call owns its parser state, so concurrent
// handshakes never contend.

package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/momentics/roomsock/api"
)

// HTTP header names used by the upgrade.
const (
	HeaderConnection      = "Connection"
	HeaderUpgrade         = "Upgrade"
	HeaderSecWebSocketKey = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer = "Sec-WebSocket-Version"
	HeaderSecWebSocketPro = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketAcc = "Sec-WebSocket-Accept"
	HeaderCookie          = "Cookie"
)

const (
	DefaultMaxHeaderBytes = 8192
	DefaultChunkSize      = 1024

	ValueUpgrade             = "upgrade"
	ValueWebSocket           = "websocket"
	RequiredWebSocketVersion = "13"
)

var (
	ErrInvalidUpgradeHeaders = negErr(http.StatusBadRequest, "invalid WebSocket upgrade headers")
	ErrBadWebSocketVersion   = negErr(http.StatusBadRequest, "unsupported WebSocket version; only '13' is supported")
	ErrMethodNotAllowed      = negErr(http.StatusMethodNotAllowed, "upgrade request method must be GET")
)

// Header is a case-insensitive header map. Keys are stored canonicalized.
type Header map[string]string

// Get returns the value for name, or "".
func (h Header) Get(name string) string {
	return h[http.CanonicalHeaderKey(name)]
}

// Set stores value under name.
func (h Header) Set(name, value string) {
	h[http.CanonicalHeaderKey(name)] = value
}

// add appends to an existing value with ", " as HTTP allows for repeated fields.
func (h Header) add(name, value string) {
	key := http.CanonicalHeaderKey(name)
	if prev, ok := h[key]; ok && prev != "" {
		h[key] = prev + ", " + value
		return
	}
	h[key] = value
}

// QueryParam is one key/value pair from the request query string.
type QueryParam struct {
	Key   string
	Value string
}

// Request is the metadata captured from the Upgrade request.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Query    []QueryParam // in request order
	Header   Header
}

// QueryValue returns the first value for key.
func (r *Request) QueryValue(key string) (string, bool) {
	for _, p := range r.Query {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Cookie returns the named cookie from the Cookie header.
func (r *Request) Cookie(name string) (string, bool) {
	for _, part := range strings.Split(r.Header.Get(HeaderCookie), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == name {
			return v, true
		}
	}
	return "", false
}

// Subprotocols returns the offered subprotocols in client preference order.
func (r *Request) Subprotocols() []string {
	raw := r.Header.Get(HeaderSecWebSocketPro)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Response is the 101 reply to a successful negotiation.
type Response struct {
	Accept   string
	Protocol string // echoed only when the client asked for one

	// Rest holds bytes read past the end of the headers; they belong to the
	// frame stream.
	Rest []byte
}

// Negotiator parses Upgrade requests.
type Negotiator struct {
	MaxHeaderBytes int // 431 when exceeded
	ChunkSize      int // read size while collecting headers
	// Strict additionally requires Upgrade/Connection tokens and version 13.
	Strict bool
}

// NewNegotiator returns a Negotiator with default limits.
func NewNegotiator() *Negotiator {
	return &Negotiator{MaxHeaderBytes: DefaultMaxHeaderBytes, ChunkSize: DefaultChunkSize}
}

// Negotiate reads an Upgrade request from r and builds the response.
// Failures are *api.Error values of KindNegotiation carrying the HTTP status.
func (n *Negotiator) Negotiate(r io.Reader) (*Response, *Request, error) {
	raw, rest, err := n.readHeaderBlock(r)
	if err != nil {
		return nil, nil, err
	}
	req, err := parseRequest(raw)
	if err != nil {
		return nil, nil, err
	}
	if n.Strict {
		if err := validateUpgradeRequest(req); err != nil {
			return nil, nil, err
		}
	}
	key := strings.TrimSpace(req.Header.Get(HeaderSecWebSocketKey))
	if key == "" {
		return nil, nil, ErrMissingKey
	}
	resp := &Response{Accept: AcceptKey(key), Rest: rest}
	if protos := req.Subprotocols(); len(protos) > 0 {
		resp.Protocol = protos[0]
	}
	return resp, req, nil
}

// readHeaderBlock reads chunks until a blank line terminates the headers.
func (n *Negotiator) readHeaderBlock(r io.Reader) (head, rest []byte, err error) {
	maxBytes := n.MaxHeaderBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxHeaderBytes
	}
	chunk := n.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	buf := make([]byte, 0, chunk)
	tmp := make([]byte, chunk)
	scanFrom := 0
	for {
		nr, rerr := r.Read(tmp)
		buf = append(buf, tmp[:nr]...)
		if end, ok := headerEnd(buf, scanFrom); ok {
			if end > maxBytes {
				return nil, nil, ErrHeaderTooLarge.WithContext("limit", maxBytes)
			}
			return buf[:end], buf[end:], nil
		}
		if len(buf) > maxBytes {
			return nil, nil, ErrHeaderTooLarge.WithContext("limit", maxBytes)
		}
		// a terminator may straddle two chunks
		scanFrom = max(0, len(buf)-3)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil, nil, ErrHandshakeIncomplete
			}
			return nil, nil, api.Transport("read handshake", rerr)
		}
	}
}

// headerEnd returns the offset just past the first blank line, accepting both
// "\n\n" and "\r\n\r\n".
func headerEnd(buf []byte, from int) (int, bool) {
	for i := from; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		if i+1 < len(buf) && buf[i+1] == '\n' {
			return i + 2, true
		}
		if i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n' {
			return i + 3, true
		}
	}
	return 0, false
}

func parseRequest(raw []byte) (*Request, error) {
	lines := bytes.Split(raw, []byte("\n"))
	first := strings.Fields(strings.TrimRight(string(lines[0]), "\r"))
	if len(first) < 2 {
		return nil, ErrMalformedRequest
	}
	req := &Request{Method: first[0], Header: make(Header)}
	req.Path, req.RawQuery, _ = strings.Cut(first[1], "?")
	req.Query = ParseQuery(req.RawQuery)

	for _, line := range lines[1:] {
		s := strings.TrimRight(string(line), "\r")
		if s == "" {
			continue
		}
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			continue
		}
		req.Header.add(strings.TrimSpace(name), strings.TrimLeft(value, " \t"))
	}
	return req, nil
}

// ParseQuery splits raw on '&' then on the first '='. A parameter without
// '=' is recorded as key=key. Order is preserved and values are not decoded.
func ParseQuery(raw string) []QueryParam {
	if raw == "" {
		return nil
	}
	var out []QueryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			v = k
		}
		out = append(out, QueryParam{Key: k, Value: v})
	}
	return out
}

// AcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func AcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// validateUpgradeRequest checks the method and the Upgrade, Connection and
// version headers.
func validateUpgradeRequest(req *Request) error {
	if req.Method != http.MethodGet {
		return ErrMethodNotAllowed.WithContext("method", req.Method)
	}
	h := req.Header
	if !containsToken(h.Get(HeaderConnection), ValueUpgrade) ||
		!containsToken(h.Get(HeaderUpgrade), ValueWebSocket) {
		return ErrInvalidUpgradeHeaders
	}
	if h.Get(HeaderSecWebSocketVer) != RequiredWebSocketVersion {
		return ErrBadWebSocketVersion
	}
	return nil
}

// containsToken checks if headerValue contains token (case-insensitive).
func containsToken(headerValue, token string) bool {
	for _, p := range strings.Split(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(p), token) {
			return true
		}
	}
	return false
}
