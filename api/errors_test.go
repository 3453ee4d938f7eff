package api_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/roomsock/api"
)

var errSentinel = api.NewError(api.KindProtocol, 1002, "bad frame")

func TestErrorMatchesSentinelAfterDecoration(t *testing.T) {
	err := errSentinel.WithContext("opcode", 3).Wrap(io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("read: %w", err)

	assert.ErrorIs(t, wrapped, errSentinel)
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "bad frame")
	assert.Contains(t, err.Error(), "opcode")
	// sentinel is untouched
	assert.Empty(t, errSentinel.Context)
	assert.Nil(t, errSentinel.Err)
}

func TestKindAndCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", errSentinel)
	k, ok := api.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, api.KindProtocol, k)
	assert.True(t, api.IsKind(err, api.KindProtocol))
	assert.False(t, api.IsKind(err, api.KindTransport))
	assert.Equal(t, 1002, api.CodeOf(err, 1011))
	assert.Equal(t, 1011, api.CodeOf(errors.New("plain"), 1011))

	tr := api.Transport("read", io.EOF)
	assert.True(t, api.IsKind(tr, api.KindTransport))
	assert.ErrorIs(t, tr, io.EOF)
	assert.Equal(t, "transport", api.KindTransport.String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", api.StateOpen.String())
	assert.Equal(t, "closed", api.StateClosed.String())
	assert.Equal(t, "unknown", api.State(42).String())
}
