// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"time"

	"github.com/rs/zerolog"
)

// Phase names the current step of a flash session
type Phase string

const (
	PhaseDiscover  Phase = "discover"
	PhaseReboot    Phase = "reboot"
	PhaseHandshake Phase = "handshake"
	PhaseInit      Phase = "init"
	PhaseTransfer  Phase = "transfer"
	PhaseComplete  Phase = "complete"
)

// Progress is passed to the progress callback.
// Only the fields relevant to Phase are set.
type Progress struct {
	Phase Phase

	// Discover
	DeviceID  uint8
	Scanned   int
	ScanTotal int
	Found     int

	// Handshake: number of magic sequences sent so far
	Attempt int

	// Transfer
	Index      uint8
	Chunk      int
	Chunks     int
	BytesSent  int
	TotalBytes int
	Retries    int // NAKs seen so far in this transfer

	Elapsed time.Duration
}

// ProgressFunc observes session progress. It runs on the caller's goroutine
// between protocol steps and should return quickly.
type ProgressFunc func(Progress)

// Config holds client and flasher settings
type Config struct {
	// MaxRetries is the number of resends allowed after a NAK
	MaxRetries int

	// NormalTimeout is the read timeout used for frame ACKs and init
	NormalTimeout time.Duration

	// PingTimeout is used while pinging a known servo id
	PingTimeout time.Duration

	// ScanTimeout is used per id while scanning
	ScanTimeout time.Duration

	// BootloaderBaud is applied after reboot (or before recovery). Zero
	// leaves the baud rate unchanged.
	BootloaderBaud int

	// RebootDelay is the pause between reboot and the magic sequence
	RebootDelay time.Duration

	// MagicInterval is the read timeout between magic sequences in recovery
	MagicInterval time.Duration

	// MaxWait bounds the recovery handshake. Zero waits forever.
	MaxWait time.Duration

	Progress ProgressFunc
	Logger   zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		NormalTimeout:  DefaultNormalTimeout,
		PingTimeout:    DefaultPingTimeout,
		ScanTimeout:    DefaultScanTimeout,
		BootloaderBaud: DefaultBootloaderBaud,
		RebootDelay:    DefaultRebootDelay,
		MagicInterval:  DefaultMagicInterval,
		Logger:         zerolog.Nop(),
	}
}

// Option configures a Client or Flasher
type Option func(*Config)

// WithMaxRetries sets how many times a NAKed frame is resent
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

// WithProgress sets the progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

// WithLogger sets the logger used for protocol diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithNormalTimeout sets the read timeout for ACKs during init and transfer
func WithNormalTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.NormalTimeout = d
		}
	}
}

// WithPingTimeout sets the read timeout used when pinging a known id
func WithPingTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PingTimeout = d
		}
	}
}

// WithScanTimeout sets the per-id read timeout while scanning
func WithScanTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ScanTimeout = d
		}
	}
}

// WithBootloaderBaud sets the baud rate the bootloader listens on.
// Pass 0 to keep the current rate.
func WithBootloaderBaud(baud int) Option {
	return func(c *Config) {
		if baud >= 0 {
			c.BootloaderBaud = baud
		}
	}
}

// WithRebootDelay sets the pause between the reboot command and the magic
func WithRebootDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RebootDelay = d
		}
	}
}

// WithMagicInterval sets the spacing of magic sequences in recovery mode
func WithMagicInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MagicInterval = d
		}
	}
}

// WithMaxWait bounds the recovery handshake; 0 waits until cancelled
func WithMaxWait(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.MaxWait = d
		}
	}
}
