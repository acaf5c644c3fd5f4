package pipeline

import "time"

// Defaults for receipt analysis.
const (
	// DefaultModelName is the default Gemini model used for receipts.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTemperature keeps extraction close to deterministic.
	DefaultTemperature float32 = 0.1

	// DefaultMaxOutputTokens bounds the size of a single model answer.
	DefaultMaxOutputTokens int32 = 500

	// DefaultScanTimeout bounds the processing of a single image.
	DefaultScanTimeout = 30 * time.Second

	// DefaultParallelism processes images one at a time.
	DefaultParallelism = 1
)
