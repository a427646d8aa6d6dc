package metrics

// Shared histogram buckets used across components.
var (
	// DurationBuckets covers step latencies from milliseconds up to minutes.
	DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

	// NetworkBuckets covers request round-trips.
	NetworkBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

	// SizeBuckets covers payload sizes in bytes.
	SizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 131072, 262144, 524288, 1048576}

	// CountBuckets covers small cardinalities such as batch fan-out.
	CountBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500}
)
