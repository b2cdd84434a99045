// Package iox holds small cleanup helpers shared by the bridge's
// transports, sinks and tests.
package iox

import (
	"io"

	"github.com/hashicorp/go-multierror"
)

// DiscardClose closes c and drops the error, for deferred closes whose
// failure nobody can act on:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup registration.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops its error.
func DiscardErr(fn func() error) { _ = fn() }

// CloseAll closes every non-nil closer in order, even after a failure,
// and returns the combined errors.
func CloseAll(closers ...io.Closer) error {
	var result *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// CloserFunc adapts a func to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error { return f() }
