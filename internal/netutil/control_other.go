// File: internal/netutil/control_other.go
//go:build !unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netutil

import "syscall"

// controlFunc is a no-op where x/sys/unix socket options are unavailable.
func controlFunc(ListenOptions) func(network, address string, c syscall.RawConn) error {
	return nil
}
