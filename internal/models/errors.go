package models

import "errors"

var (
	// ErrNotReady is returned by Show when the source has no cached ad.
	ErrNotReady = errors.New("ad not ready")
	// ErrAlreadyShowing is returned when a source is asked to load or show
	// while an ad is on screen.
	ErrAlreadyShowing = errors.New("ad already showing")
	// ErrNoFill means no registered source had an ad ready.
	ErrNoFill = errors.New("no fill available")
	// ErrLoadFailed wraps network-specific load failures.
	ErrLoadFailed = errors.New("ad failed to load")
	// ErrShowFailed wraps network-specific show failures.
	ErrShowFailed = errors.New("ad failed to show")
	// ErrClosed is returned by a mediator after Close.
	ErrClosed = errors.New("mediator closed")
	// ErrDuplicateNetwork is returned when two sources share a network ID.
	ErrDuplicateNetwork = errors.New("duplicate ad network")
)
