// Package iox provides small I/O helpers shared by storage and CLI code.
package iox

import "io"

// DiscardClose closes c and drops the error. For defers where a close
// failure cannot change the outcome:
//
//	defer iox.DiscardClose(rc)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// ReadAllClose reads rc to EOF and closes it. A read error wins over a
// close error.
func ReadAllClose(rc io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return data, nil
}
