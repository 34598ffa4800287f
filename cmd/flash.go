// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultFirmware = "firmware.bin"

var (
	flashID             int
	flashRecovery       bool
	flashBootloaderBaud int
	flashRetries        int
	flashMaxWait        time.Duration
	flashNormalTimeout  time.Duration
	flashPingTimeout    time.Duration
	flashScanTimeout    time.Duration
	flashMagicInterval  time.Duration
	flashRebootDelay    time.Duration
	flashTUI            bool
)

var flashCmd = &cobra.Command{
	Use:   "flash [FIRMWARE]",
	Short: "Flash a firmware image to a servo",
	Long: `Flash a raw firmware image (default firmware.bin) through the servo bootloader.

Normal mode:
  Pings --id (or scans ids 0..253 and requires exactly one servo), sends the
  reboot command, switches to --bootloader-baud and sends the magic sequence.

Recovery mode (--recovery):
  Skips ping and reboot. Sends the magic sequence every --magic-interval
  until the bootloader answers. Power cycle the servo while this runs.
  --max-wait bounds the wait; the default waits until Ctrl+C.

Over a WebSocket bridge the baud rate cannot be changed; configure the bridge
for the bootloader rate and pass --bootloader-baud 0.

Exit codes:
  0 - Firmware flashed
  1 - Flash failed
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().IntVar(&flashID, "id", -1, "Servo id (0..253); scans the bus if omitted")
	flashCmd.Flags().BoolVar(&flashRecovery, "recovery", false, "Recovery mode: send magic repeatedly while the servo is power cycled")
	flashCmd.Flags().IntVar(&flashBootloaderBaud, "bootloader-baud", bootloader.DefaultBootloaderBaud, "Bootloader baud rate (0 keeps the current rate)")
	flashCmd.Flags().IntVar(&flashRetries, "retries", bootloader.DefaultMaxRetries, "Resends allowed per frame after a NAK")
	flashCmd.Flags().DurationVar(&flashMaxWait, "max-wait", 0, "Give up the recovery handshake after this long (0 waits forever)")
	flashCmd.Flags().DurationVar(&flashNormalTimeout, "timeout", bootloader.DefaultNormalTimeout, "Read timeout for bootloader ACKs")
	flashCmd.Flags().DurationVar(&flashPingTimeout, "ping-timeout", bootloader.DefaultPingTimeout, "Read timeout when pinging --id")
	flashCmd.Flags().DurationVar(&flashScanTimeout, "scan-timeout", bootloader.DefaultScanTimeout, "Per-id read timeout while scanning")
	flashCmd.Flags().DurationVar(&flashMagicInterval, "magic-interval", bootloader.DefaultMagicInterval, "Interval between magic sequences in recovery mode")
	flashCmd.Flags().DurationVar(&flashRebootDelay, "reboot-delay", bootloader.DefaultRebootDelay, "Pause between reboot and magic")
	flashCmd.Flags().BoolVar(&flashTUI, "tui", false, "Show the interactive progress UI")
}

func runFlash(cmd *cobra.Command, args []string) error {
	firmwarePath := defaultFirmware
	if len(args) > 0 {
		firmwarePath = args[0]
	}

	if err := validateFlashFlags(); err != nil {
		return err
	}

	target, err := flashTarget()
	if err != nil {
		return err
	}

	image, err := bootloader.ReadFirmware(firmwarePath)
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo := mustOpenConnection()
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("firmware", firmwarePath).
		Int("bytes", len(image)).
		Bool("recovery", target.Recovery).
		Msg("starting flash session")

	if flashTUI {
		err = runFlashTUI(ctx, conn, connInfo, firmwarePath, image, target)
	} else {
		err = runFlashText(ctx, conn, connInfo, firmwarePath, image, target)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFLASH FAILED: %v\n", err)
		if hint := flashHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		logger.Error().Err(err).Msg("flash session failed")
		os.Exit(1)
	}

	return nil
}

// flashTarget builds the session target from flags
func flashTarget() (bootloader.Target, error) {
	target := bootloader.Target{Recovery: flashRecovery}
	if flashID >= 0 {
		id, err := parseID(flashID)
		if err != nil {
			return target, err
		}
		target.ID = &id
	}
	return target, nil
}

// validateFlashFlags rejects values the session options would otherwise
// ignore in favour of their defaults
func validateFlashFlags() error {
	if flashRetries < 0 {
		return fmt.Errorf("--retries must be >= 0 (got %d)", flashRetries)
	}
	if flashBootloaderBaud < 0 {
		return fmt.Errorf("--bootloader-baud must be >= 0 (got %d)", flashBootloaderBaud)
	}
	if flashMaxWait < 0 {
		return fmt.Errorf("--max-wait must be >= 0 (got %s)", flashMaxWait)
	}
	if flashRebootDelay < 0 {
		return fmt.Errorf("--reboot-delay must be >= 0 (got %s)", flashRebootDelay)
	}

	for _, d := range []struct {
		flag  string
		value time.Duration
	}{
		{"timeout", flashNormalTimeout},
		{"ping-timeout", flashPingTimeout},
		{"scan-timeout", flashScanTimeout},
		{"magic-interval", flashMagicInterval},
	} {
		if err := requirePositive(d.flag, d.value); err != nil {
			return err
		}
	}
	return nil
}

// requirePositive rejects a zero or negative duration flag
func requirePositive(flag string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--%s must be > 0 (got %s)", flag, d)
	}
	return nil
}

// parseID validates a unicast servo id
func parseID(v int) (uint8, error) {
	if v < 0 || v > dynamixel.MaxID {
		return 0, fmt.Errorf("invalid id %d (must be 0..%d)", v, dynamixel.MaxID)
	}
	return uint8(v), nil
}

// flashOptions maps flags to session options
func flashOptions() []bootloader.Option {
	return []bootloader.Option{
		bootloader.WithLogger(logger),
		bootloader.WithMaxRetries(flashRetries),
		bootloader.WithBootloaderBaud(flashBootloaderBaud),
		bootloader.WithMaxWait(flashMaxWait),
		bootloader.WithNormalTimeout(flashNormalTimeout),
		bootloader.WithPingTimeout(flashPingTimeout),
		bootloader.WithScanTimeout(flashScanTimeout),
		bootloader.WithMagicInterval(flashMagicInterval),
		bootloader.WithRebootDelay(flashRebootDelay),
	}
}

// flashHint suggests a fix for common failures
func flashHint(err error) string {
	var ambiguous *bootloader.AmbiguousDeviceError
	var retries *bootloader.RetryExhaustedError

	switch {
	case errors.As(err, &ambiguous):
		return "Re-run with --id set to one of the ids above."
	case errors.Is(err, bootloader.ErrNoDevice):
		return "No servo answered. Check wiring and baud rate, or pass --id."
	case errors.Is(err, dynamixel.ErrTimeout):
		return "The servo did not answer the ping. If it is stuck in the bootloader, use --recovery."
	case errors.Is(err, ErrBaudRateUnsupported):
		return "Set the bridge to the bootloader baud rate and pass --bootloader-baud 0."
	case errors.As(err, &retries):
		return "The bootloader kept rejecting a frame. Check the image and the connection."
	case errors.Is(err, context.Canceled):
		return "Interrupted."
	}
	return ""
}

// textReporter prints session progress on a plain terminal
type textReporter struct {
	bar     *progressbar.ProgressBar
	stats   *transferStats
	isTTY   bool
	scanned bool
}

func newTextReporter() *textReporter {
	return &textReporter{
		stats: newTransferStats(),
		isTTY: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (r *textReporter) report(p bootloader.Progress) {
	r.stats.Update(p)

	switch p.Phase {
	case bootloader.PhaseDiscover:
		if p.ScanTotal == 0 {
			fmt.Printf("Pinging device id %d...\n", p.DeviceID)
			return
		}
		r.scanned = true
		if r.isTTY || p.Scanned == p.ScanTotal {
			fmt.Printf("\x1b[2K\rScanning IDs (%3d/%3d) found: %d", p.Scanned, p.ScanTotal, p.Found)
		}

	case bootloader.PhaseReboot:
		if r.scanned {
			fmt.Println()
		}
		fmt.Printf("Rebooting device id %d into bootloader...\n", p.DeviceID)

	case bootloader.PhaseHandshake:
		if p.Elapsed == 0 {
			fmt.Printf("Sending magic sequence...\n")
			return
		}
		if r.isTTY {
			fmt.Printf("\x1b[2K\rWaiting for bootloader... %d attempts (%s)", p.Attempt, p.Elapsed.Round(time.Second))
		}

	case bootloader.PhaseInit:
		fmt.Printf("\nBootloader acknowledged magic, sending init...\n")

	case bootloader.PhaseTransfer:
		if r.bar == nil {
			r.bar = progressbar.NewOptions(p.TotalBytes,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Writing"),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWriter(os.Stdout),
				progressbar.OptionThrottle(50*time.Millisecond),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		_ = r.bar.Set(p.BytesSent)
		if p.Retries > 0 {
			r.bar.Describe(fmt.Sprintf("Writing (%d NAKs)", p.Retries))
		}

	case bootloader.PhaseComplete:
		if r.bar != nil {
			_ = r.bar.Finish()
		}
	}
}

func runFlashText(ctx context.Context, conn Connection, connInfo, firmwarePath string, image []byte, target bootloader.Target) error {
	fmt.Printf("Feeflash - Firmware Flash\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Firmware: %s (%d bytes, %d frames)\n", firmwarePath, len(image), bootloader.ChunkCount(len(image)))
	if target.Recovery {
		fmt.Printf("Mode: recovery (power cycle the servo now, Ctrl+C to abort)\n\n")
	} else {
		fmt.Printf("Mode: normal\n\n")
	}

	reporter := newTextReporter()
	opts := append(flashOptions(), bootloader.WithProgress(reporter.report))

	if err := bootloader.NewFlasher(conn, opts...).Run(ctx, image, target); err != nil {
		return err
	}

	fmt.Printf("\n--- Flash summary ---\n")
	fmt.Printf("%s\n", reporter.stats.Summary())
	fmt.Printf("Firmware flashed successfully.\n")
	return nil
}
