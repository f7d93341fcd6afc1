package constants

import "time"

// Default step parameters used when a program document leaves them out
const (
	// Image step defaults
	DefaultStepTimeout  = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMoveDuration = 150 * time.Millisecond

	// Lower bound for polling so a zero interval never busy-spins
	MinPollInterval = 10 * time.Millisecond

	// Nested CallFunction limit per run
	DefaultMaxCallDepth = 32

	// Connection timeouts
	ConnectionTimeout = 10 * time.Second
	SocketTimeout     = 5 * time.Second

	// Screenshot timeout
	ScreenshotTimeout = 15 * time.Second

	// Events buffered between the run worker and the host
	EventBufferSize = 64
)

// Vision defaults
const (
	// DefaultConfidence is the share of pattern pixels that must match
	DefaultConfidence = 0.95

	// DefaultTolerance is the per-channel difference (0-255) still counted as a match
	DefaultTolerance = 24
)
