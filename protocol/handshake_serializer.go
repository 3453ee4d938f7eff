// File: protocol/handshake_serializer.go
// Package protocol
// Helper functions for writing handshake replies.
package protocol

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/momentics/roomsock/api"
)

// String renders the full 101 reply including the terminating blank line.
func (r *Response) String() string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderSecWebSocketAcc, r.Accept)
	if r.Protocol != "" {
		fmt.Fprintf(&b, "%s: %s\r\n", HeaderSecWebSocketPro, r.Protocol)
	}
	b.WriteString("\r\n")
	return b.String()
}

// WriteTo writes the 101 reply to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}

// RejectStatus returns the HTTP status for a failed negotiation.
func RejectStatus(err error) int {
	if api.IsKind(err, api.KindNegotiation) {
		return api.CodeOf(err, http.StatusBadRequest)
	}
	if api.IsKind(err, api.KindResource) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// WriteReject writes a bodyless HTTP error reply for err.
func WriteReject(w io.Writer, err error) error {
	status := RejectStatus(err)
	_, werr := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		status, http.StatusText(status))
	return werr
}
