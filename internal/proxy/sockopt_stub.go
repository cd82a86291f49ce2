//go:build !unix

package proxy

import "syscall"

func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
