package replay

import (
	"os"
)

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`sitstraight replay
==================

Generates synthetic landmark sets around an upright sitter, submits them to a
running server and checks what it recorded.

Usage:
  go run ./cmd/replay [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -samples int
        Number of samples to generate (default 1000)
  -mode string
        "samples" posts to /samples and verifies the recorded count,
        "score" posts to /score and checks each state (default "samples")
  -mix string
        Profile weights (default "absent=10,slouched=25,tilted=15,upright=50")
  -seed int
        Generator seed; the same seed and run id yield the same samples (default 1)
  -run string
        Run id used as the sample id prefix (default random)
  -workers int
        Number of concurrent workers (default 8)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for the recorded count to catch up (default 30s)
  -output string
        File for the generated samples (default replay_<run>_<time>.json)
  -log string
        Also write logs to this file
  -verbose
        Log every rejected or mismatched sample
  -help
        Show this help

Examples:
  go run ./cmd/replay -samples 5000 -workers 16
  go run ./cmd/replay -mode score -mix upright=1

/score is rate limited per client; start the server with
SITSTRAIGHT_HTTP__RATE_LIMIT=0 before a large score run.
  go run ./cmd/replay -seed 7 -run fixed   # run twice to exercise duplicate handling
`)
}
