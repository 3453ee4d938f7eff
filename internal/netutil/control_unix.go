// File: internal/netutil/control_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func controlFunc(opts ListenOptions) func(network, address string, c syscall.RawConn) error {
	if !opts.ReuseAddr && !opts.ReusePort {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if opts.ReuseAddr {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
					return
				}
			}
			if opts.ReusePort {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}
