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

	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/spf13/cobra"
)

var monitorDuration time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print raw bytes received on the bus",
	Long: `Listen on the connection without sending anything and print every chunk
of bytes received. Chunks that decode as servo status packets are shown
decoded as well.

Useful for debugging wiring, baud rate mismatches and WebSocket bridge
stability. A duration of 0 listens until Ctrl+C.

Exit codes:
  0 - Monitor completed normally
  1 - Connection failed while monitoring
  2 - Connection error`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 30*time.Second, "How long to listen (0 = until Ctrl+C)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo := mustOpenConnection()
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if monitorDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	// wake up once a second to check for cancellation
	if err := conn.SetReadTimeout(time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Feeflash - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if monitorDuration > 0 {
		fmt.Printf("Duration: %v\n", monitorDuration)
	}
	fmt.Printf("Listening for data...\n\n")

	start := time.Now()
	stats, err := monitorBus(ctx, conn, func(line string) { fmt.Println(line) })

	fmt.Printf("\n--- Monitor results ---\n")
	fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Chunks received: %d\n", stats.chunks)
	fmt.Printf("Bytes received: %d\n", stats.bytes)
	fmt.Printf("Status packets: %d\n", stats.statusPackets)

	if err != nil {
		fmt.Printf("Result: FAILED (%v)\n", err)
		os.Exit(1)
	}
	return nil
}

type monitorStats struct {
	chunks        int
	bytes         int
	statusPackets int
}

// monitorBus reads until ctx is done, passing one formatted line per chunk
// (plus a decoded line for status packets) to emit. Read timeouts are idle
// periods, not errors.
func monitorBus(ctx context.Context, conn Connection, emit func(string)) (monitorStats, error) {
	var stats monitorStats
	buf := make([]byte, 256)

	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return stats, err
		}
		if n == 0 {
			continue
		}

		stats.chunks++
		stats.bytes += n
		data := buf[:n]
		emit(fmt.Sprintf("[%s] Received %d bytes: % X", time.Now().Format("15:04:05.000"), n, data))

		if status, err := dynamixel.ParseStatusPacket(data); err == nil {
			stats.statusPackets++
			emit("  " + dynamixel.FormatStatus(status))
		}
		logger.Trace().Hex("data", data).Msg("bus data")
	}

	return stats, nil
}
