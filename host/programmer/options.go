package programmer

import (
	"time"

	"github.com/ardnew/hoodloader/pkg"
)

// Config holds the programmer configuration.
type Config struct {
	// ProgressCallback is called while writing, reading and verifying (optional)
	ProgressCallback ProgressCallback

	// Logger receives operation logs. Defaults to the client component logger.
	Logger Logger

	// ReadTimeout bounds the wait for each command response
	ReadTimeout time.Duration

	// Verify enables read-back verification in Program
	Verify bool

	// Erase enables a chip erase before writing in Program
	Erase bool

	// Signature, when set, must match the device signature before Program
	// touches the flash
	Signature *[3]byte
}

func defaultConfig() Config {
	return Config{
		Logger:      pkg.Logger(pkg.ComponentClient),
		ReadTimeout: 2 * time.Second,
		Verify:      true,
		Erase:       true,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback to track progress.
//
// Example:
//
//	prog := programmer.New(port,
//	    programmer.WithProgressCallback(func(p programmer.Progress) {
//	        fmt.Printf("%s %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the response timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithVerify enables or disables verification after programming.
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithErase enables or disables the chip erase before programming.
func WithErase(erase bool) Option {
	return func(c *Config) {
		c.Erase = erase
	}
}

// WithSignature requires the device to report sig before programming.
func WithSignature(sig [3]byte) Option {
	return func(c *Config) {
		c.Signature = &sig
	}
}
