// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/momentics/roomsock/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	// TCP bind address, e.g. ":9000".
	ListenAddr string `validate:"required"`
	// Set SO_REUSEADDR on the listening socket.
	ReuseAddr bool
	// Handshake header limit; larger requests get 431.
	MaxHeaderBytes int `validate:"gte=256"`
	// Bytes requested per handshake read.
	HandshakeChunkSize int `validate:"gte=1"`
	// Also require the GET method, the Upgrade/Connection headers and version 13.
	StrictHandshake bool
	// Deadline for the whole handshake, 0 disables.
	HandshakeTimeout time.Duration `validate:"gte=0"`
	// Idle limit between frames; a silent peer is dropped with a
	// transport error. 0 disables.
	ReadTimeout time.Duration `validate:"gte=0"`
	// Per-frame write deadline, 0 disables.
	WriteTimeout time.Duration `validate:"gte=0"`
	// How long Close waits for the peer's Close reply.
	CloseTimeout time.Duration `validate:"gte=0"`
	// Graceful shutdown budget used by Serve.
	ShutdownTimeout time.Duration `validate:"gte=0"`
	// Handshake pool size.
	NegotiationWorkers int `validate:"gte=1"`
	// Accepted sockets allowed to wait for a negotiation worker.
	NegotiationQueue int `validate:"gte=1"`
	// Open connection cap, 0 = unlimited. Excess handshakes get 503.
	MaxConnections int `validate:"gte=0"`
	// Largest single frame payload.
	MaxFramePayload int64 `validate:"gte=125"`
	// Frames allowed in one fragmented message.
	MaxFragments int `validate:"gte=1"`
	// Reassembled message size limit.
	MaxMessageSize int `validate:"gte=1"`
	// Connection registry shard count.
	RegistryShards int `validate:"gte=1"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":9000",
		ReuseAddr:          true,
		MaxHeaderBytes:     protocol.DefaultMaxHeaderBytes,
		HandshakeChunkSize: protocol.DefaultChunkSize,
		HandshakeTimeout:   10 * time.Second,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		CloseTimeout:       5 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		NegotiationWorkers: runtime.NumCPU(),
		NegotiationQueue:   1024,
		MaxConnections:     0,
		MaxFramePayload:    protocol.MaxFramePayload,
		MaxFragments:       protocol.DefaultMaxFragments,
		MaxMessageSize:     protocol.DefaultMaxMessageSize,
		RegistryShards:     32,
	}
}

// Validate checks cfg against its field constraints.
//
// It returns validator.ValidationErrors wrapped with a config prefix; use
// errors.As to inspect the individual field failures.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
