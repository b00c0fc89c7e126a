// Copyright 2025 Certen Protocol
//
// Imaging package errors

package imaging

import "errors"

var (
	// ErrUnreadableImage is returned when input bytes cannot be decoded as a
	// supported raster format.
	ErrUnreadableImage = errors.New("imaging: unreadable image")
)
