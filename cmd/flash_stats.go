// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
)

// transferStats tracks firmware transfer progress and rates
type transferStats struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesSent  int
	TotalFrames int
	BytesSent   int
	TotalBytes  int
	Naks        int

	// Rates (calculated)
	ByteRate  float64 // bytes/sec
	FrameRate float64 // frames/sec
}

// newTransferStats creates a new statistics tracker
func newTransferStats() *transferStats {
	now := time.Now()
	return &transferStats{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records a transfer progress event
func (s *transferStats) Update(p bootloader.Progress) {
	if p.Phase != bootloader.PhaseTransfer && p.Phase != bootloader.PhaseComplete {
		return
	}

	if s.FramesSent == 0 && p.Phase == bootloader.PhaseTransfer {
		// measure from the first frame, not from discovery
		s.StartTime = time.Now().Add(-p.Elapsed)
	}

	if p.Chunk > 0 {
		s.FramesSent = p.Chunk
	}
	if p.Phase == bootloader.PhaseComplete {
		s.FramesSent = p.Chunks
	}
	s.TotalFrames = p.Chunks
	s.BytesSent = p.BytesSent
	s.TotalBytes = p.TotalBytes
	s.Naks = max(s.Naks, p.Retries)
	s.LastUpdateTime = time.Now()

	s.CalculateRates()
}

// CalculateRates updates the byte and frame rates
func (s *transferStats) CalculateRates() {
	elapsed := s.LastUpdateTime.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.ByteRate = float64(s.BytesSent) / elapsed
	s.FrameRate = float64(s.FramesSent) / elapsed
}

// Percent returns transfer completion in the range 0..1
func (s *transferStats) Percent() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.BytesSent) / float64(s.TotalBytes)
}

// ETA estimates the remaining transfer time
func (s *transferStats) ETA() time.Duration {
	if s.ByteRate <= 0 || s.BytesSent >= s.TotalBytes {
		return 0
	}
	remaining := float64(s.TotalBytes-s.BytesSent) / s.ByteRate
	return time.Duration(remaining * float64(time.Second))
}

// Summary returns a one-line transfer summary
func (s *transferStats) Summary() string {
	elapsed := s.LastUpdateTime.Sub(s.StartTime).Round(time.Millisecond)
	return fmt.Sprintf("%d frames, %d bytes in %v (%.1f KiB/s, %d NAKs)",
		s.FramesSent, s.BytesSent, elapsed, s.ByteRate/1024, s.Naks)
}
