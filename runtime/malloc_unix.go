//go:build unix

package runtime

import (
	"golang.org/x/sys/unix"

	"github.com/sbl8/arraycore/core"
)

// mapBuffer returns an anonymous private mapping of at least n bytes.
// The returned slice has length n and the capacity of the whole mapping.
func mapBuffer(n int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, core.AlignPage(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// unmapBuffer releases a mapping created by mapBuffer.
func unmapBuffer(b []byte) error {
	return unix.Munmap(b[:cap(b)])
}

const mmapSupported = true
