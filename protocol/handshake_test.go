package protocol_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
)

const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeRequest(target string, extra ...string) string {
	var b strings.Builder
	b.WriteString("GET " + target + " HTTP/1.1\r\n")
	b.WriteString("Host: example.com\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: " + sampleKey + "\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	for _, h := range extra {
		b.WriteString(h + "\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

func TestAcceptKeyRFCExample(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", protocol.AcceptKey(sampleKey))
	assert.Equal(t, protocol.AcceptKey(sampleKey), protocol.AcceptKey(sampleKey))
}

func TestNegotiateParsesRequest(t *testing.T) {
	raw := upgradeRequest("/chat/room1?token=abc&flag&x=1=2", "Sec-WebSocket-Protocol: chat, superchat", "Cookie: a=1; lang=en")
	resp, req, err := protocol.NewNegotiator().Negotiate(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/chat/room1", req.Path)
	assert.Equal(t, "token=abc&flag&x=1=2", req.RawQuery)
	assert.Equal(t, []protocol.QueryParam{
		{Key: "token", Value: "abc"},
		{Key: "flag", Value: "flag"},
		{Key: "x", Value: "1=2"},
	}, req.Query)
	v, ok := req.QueryValue("flag")
	assert.True(t, ok)
	assert.Equal(t, "flag", v)

	assert.Equal(t, "example.com", req.Header.Get("host"))
	assert.Equal(t, sampleKey, req.Header.Get("SEC-WEBSOCKET-KEY"))
	lang, ok := req.Cookie("lang")
	assert.True(t, ok)
	assert.Equal(t, "en", lang)

	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Accept)
	assert.Equal(t, "chat", resp.Protocol)
	assert.Empty(t, resp.Rest)
}

func TestResponseFormat(t *testing.T) {
	resp := &protocol.Response{Accept: "abc="}
	var buf bytes.Buffer
	_, err := resp.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n"+
		"Sec-WebSocket-Accept: abc=\r\n\r\n", buf.String())

	resp.Protocol = "chat"
	assert.Contains(t, resp.String(), "Sec-WebSocket-Protocol: chat\r\n\r\n")

	// the reply must be readable by a stock HTTP client
	hr, err := http.ReadResponse(bufioReader(resp.String()), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, hr.StatusCode)
	assert.Equal(t, "abc=", hr.Header.Get("Sec-WebSocket-Accept"))
}

func TestNegotiateBareNewlines(t *testing.T) {
	raw := "GET /x HTTP/1.1\nSec-WebSocket-Key:   " + sampleKey + "\n\n"
	resp, req, err := protocol.NewNegotiator().Negotiate(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "/x", req.Path)
	assert.Nil(t, req.Query)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Accept)
	assert.Empty(t, resp.Protocol)
}

func TestNegotiateKeepsTrailingFrameBytes(t *testing.T) {
	raw := upgradeRequest("/") + "\x81\x00"
	// one byte at a time so the terminator straddles reads
	resp, _, err := protocol.NewNegotiator().Negotiate(iotest.OneByteReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Empty(t, resp.Rest)

	n := &protocol.Negotiator{MaxHeaderBytes: 4096, ChunkSize: 4096}
	resp, _, err = n.Negotiate(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x00}, resp.Rest)
}

func TestNegotiateMissingKey(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	_, _, err := protocol.NewNegotiator().Negotiate(strings.NewReader(raw))
	assert.ErrorIs(t, err, protocol.ErrMissingKey)
	assert.True(t, api.IsKind(err, api.KindNegotiation))
	assert.Equal(t, http.StatusBadRequest, protocol.RejectStatus(err))
}

func TestNegotiateHeaderTooLarge(t *testing.T) {
	raw := upgradeRequest("/", "X-Padding: "+strings.Repeat("p", 600))
	n := &protocol.Negotiator{MaxHeaderBytes: 256, ChunkSize: 64}
	_, _, err := n.Negotiate(strings.NewReader(raw))
	assert.ErrorIs(t, err, protocol.ErrHeaderTooLarge)
	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, protocol.RejectStatus(err))

	var buf bytes.Buffer
	require.NoError(t, protocol.WriteReject(&buf, err))
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 431 Request Header Fields Too Large\r\n"))
}

func TestNegotiateNeverTerminated(t *testing.T) {
	// no blank line and no EOF: must stop at the limit instead of reading forever
	endless := io.MultiReader(strings.NewReader("GET / HTTP/1.1\r\n"), infiniteHeader{})
	n := &protocol.Negotiator{MaxHeaderBytes: 512, ChunkSize: 100}
	_, _, err := n.Negotiate(endless)
	assert.ErrorIs(t, err, protocol.ErrHeaderTooLarge)
}

func TestNegotiateIncompleteAndMalformed(t *testing.T) {
	_, _, err := protocol.NewNegotiator().Negotiate(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n"))
	assert.ErrorIs(t, err, protocol.ErrHandshakeIncomplete)

	_, _, err = protocol.NewNegotiator().Negotiate(strings.NewReader("GARBAGE\r\n\r\n"))
	assert.ErrorIs(t, err, protocol.ErrMalformedRequest)

	boom := errors.New("boom")
	_, _, err = protocol.NewNegotiator().Negotiate(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)
	assert.True(t, api.IsKind(err, api.KindTransport))
}

func TestNegotiateStrict(t *testing.T) {
	n := protocol.NewNegotiator()
	n.Strict = true
	_, _, err := n.Negotiate(strings.NewReader(upgradeRequest("/")))
	require.NoError(t, err)

	raw := "GET / HTTP/1.1\r\nSec-WebSocket-Key: " + sampleKey + "\r\n\r\n"
	_, _, err = n.Negotiate(strings.NewReader(raw))
	assert.ErrorIs(t, err, protocol.ErrInvalidUpgradeHeaders)

	raw = "GET / HTTP/1.1\r\nUpgrade: WebSocket\r\nConnection: keep-alive, Upgrade\r\n" +
		"Sec-WebSocket-Version: 8\r\nSec-WebSocket-Key: " + sampleKey + "\r\n\r\n"
	_, _, err = n.Negotiate(strings.NewReader(raw))
	assert.ErrorIs(t, err, protocol.ErrBadWebSocketVersion)

	raw = strings.Replace(upgradeRequest("/"), "GET ", "POST ", 1)
	_, _, err = n.Negotiate(strings.NewReader(raw))
	assert.ErrorIs(t, err, protocol.ErrMethodNotAllowed)
	assert.Equal(t, http.StatusMethodNotAllowed, protocol.RejectStatus(err))

	n.Strict = false
	_, _, err = n.Negotiate(strings.NewReader(raw))
	assert.NoError(t, err, "method is only checked in strict mode")
}

func TestParseQuery(t *testing.T) {
	assert.Nil(t, protocol.ParseQuery(""))
	assert.Equal(t, []protocol.QueryParam{{Key: "a", Value: ""}, {Key: "b", Value: "b"}},
		protocol.ParseQuery("a=&&b"))
}

func bufioReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

type infiniteHeader struct{}

func (infiniteHeader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'h'
	}
	return len(p), nil
}
