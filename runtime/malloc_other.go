//go:build !unix

package runtime

import "errors"

func mapBuffer(n int) ([]byte, error) {
	return nil, errors.New("anonymous mappings not supported on this platform")
}

func unmapBuffer(b []byte) error { return nil }

const mmapSupported = false
