// File: internal/netutil/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP listener construction with optional socket options.

package netutil

import (
	"context"
	"fmt"
	"net"
)

// ListenOptions selects socket options applied before bind.
type ListenOptions struct {
	ReuseAddr bool
	ReusePort bool
}

// Listen binds a TCP listener on addr honoring opts. Options not supported on
// the current platform are ignored.
func Listen(ctx context.Context, addr string, opts ListenOptions) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlFunc(opts)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
