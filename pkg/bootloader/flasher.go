// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/feeflash/pkg/dynamixel"
)

// Target selects how the servo is brought into the bootloader
type Target struct {
	// ID of the servo to reboot. Nil scans the bus and requires exactly
	// one responder.
	ID *uint8

	// Recovery skips ping and reboot and keeps sending the magic sequence
	// until a freshly power cycled servo answers.
	Recovery bool
}

// Flasher runs a complete flash session on a port
type Flasher struct {
	port   Port
	client *Client
	config Config
}

// NewFlasher creates a Flasher. Options are shared with the underlying Client.
func NewFlasher(port Port, opts ...Option) *Flasher {
	if port == nil {
		panic("bootloader: port cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{
		port:   port,
		client: NewClient(port, opts...),
		config: cfg,
	}
}

// Run enters the bootloader, sends init and transfers image.
//
// The image is checked before the port is touched.
func (f *Flasher) Run(ctx context.Context, image []byte, target Target) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: firmware image is empty", ErrInvalidInput)
	}

	start := time.Now()
	log := f.config.Logger

	if target.Recovery {
		if err := f.enterRecovery(ctx); err != nil {
			return err
		}
	} else {
		if err := f.enterNormal(ctx, target.ID); err != nil {
			return err
		}
	}

	f.report(Progress{Phase: PhaseInit, Elapsed: time.Since(start)})
	if err := f.client.Init(); err != nil {
		return err
	}

	if err := f.client.SendFirmware(ctx, image); err != nil {
		return err
	}

	f.report(Progress{
		Phase:      PhaseComplete,
		Chunks:     ChunkCount(len(image)),
		BytesSent:  len(image),
		TotalBytes: len(image),
		Elapsed:    time.Since(start),
	})
	log.Info().Dur("elapsed", time.Since(start)).Msg("flash session complete")
	return nil
}

// enterNormal finds the servo, reboots it and performs the single magic
// handshake at the bootloader baud rate.
func (f *Flasher) enterNormal(ctx context.Context, id *uint8) error {
	deviceID, err := f.resolveDevice(id)
	if err != nil {
		return err
	}

	if err := f.port.SetReadTimeout(f.config.NormalTimeout); err != nil {
		return fmt.Errorf("restore timeout: %w", err)
	}

	f.report(Progress{Phase: PhaseReboot, DeviceID: deviceID})
	f.config.Logger.Info().Uint8("id", deviceID).Msg("rebooting servo into bootloader")
	if err := dynamixel.Reboot(f.port, deviceID); err != nil {
		return fmt.Errorf("reboot id %d: %w", deviceID, err)
	}

	if err := f.switchBaud(); err != nil {
		return err
	}

	if err := sleepContext(ctx, f.config.RebootDelay); err != nil {
		return err
	}

	f.report(Progress{Phase: PhaseHandshake, DeviceID: deviceID, Attempt: 1})
	return f.client.SendMagic()
}

// enterRecovery waits for a power cycled servo to answer the magic sequence
func (f *Flasher) enterRecovery(ctx context.Context) error {
	f.config.Logger.Info().
		Dur("interval", f.config.MagicInterval).
		Dur("max_wait", f.config.MaxWait).
		Msg("recovery mode, waiting for bootloader")

	if err := f.switchBaud(); err != nil {
		return err
	}

	if err := f.client.WaitForMagicAck(ctx, f.config.MagicInterval, f.config.MaxWait); err != nil {
		return fmt.Errorf("recovery handshake: %w", err)
	}

	// init and frame ACKs use the normal timeout, not the magic interval
	if err := f.port.SetReadTimeout(f.config.NormalTimeout); err != nil {
		return fmt.Errorf("restore timeout: %w", err)
	}
	return nil
}

// resolveDevice pings the given id, or scans for exactly one servo
func (f *Flasher) resolveDevice(id *uint8) (uint8, error) {
	log := f.config.Logger

	if id != nil {
		if err := f.port.SetReadTimeout(f.config.PingTimeout); err != nil {
			return 0, fmt.Errorf("set ping timeout: %w", err)
		}

		f.report(Progress{Phase: PhaseDiscover, DeviceID: *id})
		resp, err := dynamixel.Ping(f.port, *id)
		if err != nil {
			return 0, fmt.Errorf("ping id %d: %w", *id, err)
		}
		log.Info().Uint8("id", *id).Hex("response", resp).Msg("ping response received")
		return *id, nil
	}

	log.Info().Msg("no id given, scanning bus")
	found, err := dynamixel.Scan(f.port,
		dynamixel.WithScanTimeout(f.config.ScanTimeout),
		dynamixel.WithRestoreTimeout(f.config.NormalTimeout),
		dynamixel.WithScanProgress(func(p dynamixel.ScanProgress) {
			f.report(Progress{
				Phase:     PhaseDiscover,
				DeviceID:  p.ID,
				Scanned:   p.Scanned,
				ScanTotal: p.Total,
				Found:     p.Found,
			})
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("scan: %w", err)
	}

	switch len(found) {
	case 0:
		return 0, ErrNoDevice
	case 1:
		log.Info().Uint8("id", found[0]).Msg("found single device")
		return found[0], nil
	default:
		return 0, &AmbiguousDeviceError{IDs: found}
	}
}

func (f *Flasher) switchBaud() error {
	if f.config.BootloaderBaud == 0 {
		return nil
	}

	f.config.Logger.Debug().Int("baud", f.config.BootloaderBaud).Msg("switching to bootloader baud rate")
	if err := f.port.SetBaudRate(f.config.BootloaderBaud); err != nil {
		return fmt.Errorf("set baud rate %d: %w", f.config.BootloaderBaud, err)
	}
	return nil
}

func (f *Flasher) report(p Progress) {
	if f.config.Progress != nil {
		f.config.Progress(p)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
