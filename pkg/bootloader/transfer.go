// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"context"
	"fmt"
	"os"
	"time"
)

// ReadFirmware loads a raw firmware image from disk
func ReadFirmware(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: firmware file %s is empty", ErrInvalidInput, path)
	}
	return data, nil
}

// ChunkCount returns the number of frames needed for an image of size n
func ChunkCount(n int) int {
	return (n + PayloadSize - 1) / PayloadSize
}

// SendFirmware splits image into 64-byte frames and sends them in order.
//
// Frame indices start at 1 and wrap at 256. Only the final frame carries the
// last-frame stop marker. The first failing frame aborts the transfer with a
// *TransferError; nothing is reported as sent until it has been ACKed.
func (c *Client) SendFirmware(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: firmware image is empty", ErrInvalidInput)
	}

	total := ChunkCount(len(image))
	start := time.Now()
	c.retries = 0

	c.config.Logger.Info().
		Int("bytes", len(image)).
		Int("chunks", total).
		Msg("sending firmware")

	index := uint8(FirstIndex)
	for chunk := 1; chunk <= total; chunk++ {
		if err := ctx.Err(); err != nil {
			return &TransferError{Index: index, Chunk: chunk, Total: total, Err: err}
		}

		lo := (chunk - 1) * PayloadSize
		hi := min(lo+PayloadSize, len(image))
		last := chunk == total

		frame, err := NewFrame(index, 0, image[lo:hi], last)
		if err != nil {
			return &TransferError{Index: index, Chunk: chunk, Total: total, Err: err}
		}

		c.config.Logger.Debug().
			Uint8("index", index).
			Int("chunk", chunk).
			Int("total", total).
			Bool("last", last).
			Msg("sending frame")

		if err := c.SendFrame(frame.Encode()); err != nil {
			return &TransferError{Index: index, Chunk: chunk, Total: total, Err: err}
		}

		c.report(Progress{
			Phase:      PhaseTransfer,
			Index:      index,
			Chunk:      chunk,
			Chunks:     total,
			BytesSent:  hi,
			TotalBytes: len(image),
			Retries:    c.retries,
			Elapsed:    time.Since(start),
		})

		index++
	}

	c.config.Logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("naks", c.retries).
		Msg("firmware transfer complete")
	return nil
}
