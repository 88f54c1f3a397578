package models

import (
	"fmt"
)

// ConfigError reports a malformed filter or plan configuration.
// It is returned before any I/O happens.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// ScanError records an entry whose metadata could not be read during the walk
type ScanError struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (e ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e ScanError) Unwrap() error {
	return e.Err
}

// TransferError is a per-file copy or verification failure
type TransferError struct {
	Path string
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// DestinationError is a failure of the destination as a whole
// (full disk, unreachable host, missing bucket), not of a single file.
type DestinationError struct {
	Endpoint string
	Err      error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s: %v", e.Endpoint, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}
