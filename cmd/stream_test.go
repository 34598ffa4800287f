// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import "time"

// nakStream answers every read with a NAK
type nakStream struct{}

func (nakStream) Read(p []byte) (int, error) {
	p[0] = 0x15
	return 1, nil
}

func (nakStream) Write(p []byte) (int, error)        { return len(p), nil }
func (nakStream) Flush() error                       { return nil }
func (nakStream) SetReadTimeout(time.Duration) error { return nil }
