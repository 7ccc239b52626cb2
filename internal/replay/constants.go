package replay

import "time"

// Defaults applied by Config.normalize.
const (
	DefaultNumSamples    = 1000
	DefaultWorkers       = 8
	DefaultTimeout       = 10 * time.Second
	DefaultSettleTimeout = 30 * time.Second
	DefaultBaseURL       = "http://localhost:9080"
)

const (
	workerChannelMultiplier = 2
	maxBackpressureRetries  = 5
	backpressureBackoff     = 20 * time.Millisecond
	pollInterval            = 100 * time.Millisecond
	progressEvery           = 1000
	percentageMultiplier    = 100
)
