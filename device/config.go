package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

// Defaults.
const (
	// DefaultSentinel is the line speed that switches the channel into
	// programmer mode.
	DefaultSentinel = 57600

	// DefaultRingCapacity is the bridge ring size. Older firmware used 64.
	DefaultRingCapacity = 128

	// DefaultIdentifier is returned by ReadBootloaderIdentifier.
	DefaultIdentifier = "LUFACDC"

	DefaultVersionMajor = 1
	DefaultVersionMinor = 0

	DefaultExitDelay       = time.Millisecond
	DefaultWatchdogTimeout = 250 * time.Millisecond
	DefaultPollInterval    = 100 * time.Microsecond
	DefaultLEDPulseTicks   = 3
	DefaultLEDTickInterval = 4 * time.Millisecond
)

// Features selects the optional AVR109 command groups. Commands of a
// disabled group answer '?'.
type Features uint8

// Feature groups.
const (
	FeatureBlock      Features = 1 << iota // b B g
	FeatureFlashByte                       // C c m R
	FeatureEEPROMByte                      // D d
	FeatureLockWrite                       // l
	FeatureFuseRead                        // r F N Q
	FeatureCompat                          // x y T

	FeatureNone Features = 0
	FeatureAll           = FeatureBlock | FeatureFlashByte | FeatureEEPROMByte |
		FeatureLockWrite | FeatureFuseRead | FeatureCompat
)

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureBlock, "block"},
	{FeatureFlashByte, "flash-byte"},
	{FeatureEEPROMByte, "eeprom-byte"},
	{FeatureLockWrite, "lock-write"},
	{FeatureFuseRead, "fuse-read"},
	{FeatureCompat, "compat"},
}

// Has reports whether every group in g is enabled.
func (f Features) Has(g Features) bool {
	return f&g == g
}

// String lists the enabled groups, comma separated.
func (f Features) String() string {
	if f == FeatureNone {
		return "none"
	}
	var names []string
	for _, n := range featureNames {
		if f.Has(n.f) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseFeatures parses a comma-separated group list. "all" and "none" are
// accepted, and a leading '-' removes a group, so "all,-lock-write" enables
// everything except lock bit writes.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(strings.ToLower(tok))
		if tok == "" {
			continue
		}
		remove := strings.HasPrefix(tok, "-")
		tok = strings.TrimPrefix(tok, "-")

		var g Features
		switch tok {
		case "all":
			g = FeatureAll
		case "none":
			g = FeatureNone
		default:
			for _, n := range featureNames {
				if n.name == tok {
					g = n.f
				}
			}
			if g == 0 {
				return 0, fmt.Errorf("%w: unknown feature %q", pkg.ErrInvalidParameter, tok)
			}
		}
		if remove {
			f &^= g
		} else {
			f |= g
		}
	}
	return f, nil
}

// Config holds the firmware configuration and its board collaborators.
type Config struct {
	// Sentinel is the baud rate that selects programmer mode.
	Sentinel uint32

	// RingCapacity is the size of the UART-to-USB ring.
	RingCapacity int

	// Features enables optional command groups.
	Features Features

	// Identifier is the 7-character bootloader identifier.
	Identifier string

	// VersionMajor and VersionMinor are reported as ASCII digits.
	VersionMajor, VersionMinor uint8

	// ExitDelay is the grace period between the Exit response and detach.
	ExitDelay time.Duration

	// WatchdogTimeout is armed after detaching to reset the device.
	WatchdogTimeout time.Duration

	// PollInterval is the sleep between polls of an idle endpoint.
	PollInterval time.Duration

	// LEDPulseTicks is how many LED ticks an activity LED stays lit.
	LEDPulseTicks int

	// LEDTickInterval is the period of the LED tick.
	LEDTickInterval time.Duration

	// Reset is the target reset line driven by DTR (optional).
	Reset board.ResetLine

	// TxLED and RxLED are the activity indicators (optional).
	TxLED, RxLED board.LED

	// Watchdog resets the device after Exit (optional).
	Watchdog board.Watchdog
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Sentinel:        DefaultSentinel,
		RingCapacity:    DefaultRingCapacity,
		Features:        FeatureAll,
		Identifier:      DefaultIdentifier,
		VersionMajor:    DefaultVersionMajor,
		VersionMinor:    DefaultVersionMinor,
		ExitDelay:       DefaultExitDelay,
		WatchdogTimeout: DefaultWatchdogTimeout,
		PollInterval:    DefaultPollInterval,
		LEDPulseTicks:   DefaultLEDPulseTicks,
		LEDTickInterval: DefaultLEDTickInterval,
	}
}

// Option configures the firmware.
type Option func(*Config)

// WithSentinel sets the baud rate that selects programmer mode.
func WithSentinel(baud uint32) Option {
	return func(c *Config) {
		c.Sentinel = baud
	}
}

// WithRingCapacity sets the bridge ring size.
func WithRingCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RingCapacity = n
		}
	}
}

// WithFeatures sets the enabled command groups.
func WithFeatures(f Features) Option {
	return func(c *Config) {
		c.Features = f
	}
}

// WithIdentity sets the identifier and version reported to the host. The
// identifier is padded or truncated to 7 characters.
func WithIdentity(id string, major, minor uint8) Option {
	return func(c *Config) {
		c.Identifier = id
		c.VersionMajor = major
		c.VersionMinor = minor
	}
}

// WithExitTiming sets the detach delay and the watchdog timeout.
func WithExitTiming(delay, watchdog time.Duration) Option {
	return func(c *Config) {
		c.ExitDelay = delay
		c.WatchdogTimeout = watchdog
	}
}

// WithPollInterval sets the idle poll sleep.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithReset sets the target reset line.
func WithReset(r board.ResetLine) Option {
	return func(c *Config) {
		c.Reset = r
	}
}

// WithLEDs sets the activity LEDs and the pulse length in ticks.
func WithLEDs(tx, rx board.LED, ticks int) Option {
	return func(c *Config) {
		c.TxLED = tx
		c.RxLED = rx
		c.LEDPulseTicks = ticks
	}
}

// WithWatchdog sets the exit watchdog.
func WithWatchdog(w board.Watchdog) Option {
	return func(c *Config) {
		c.Watchdog = w
	}
}

// identifier returns the identifier padded with spaces.
func (c *Config) identifier() [avr109.IdentifierLength]byte {
	var id [avr109.IdentifierLength]byte
	for i := range id {
		id[i] = ' '
	}
	copy(id[:], c.Identifier)
	return id
}
