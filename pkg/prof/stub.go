//go:build !profile

package prof

// ErrActive is never returned without the "profile" build tag.
var ErrActive error

// Enabled reports whether profiling support is compiled in.
func Enabled() bool { return false }

// Start is a no-op when built without the "profile" tag.
func Start(_ Options) (func() error, error) {
	return func() error { return nil }, nil
}
