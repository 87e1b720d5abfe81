// Package config centralizes runtime defaults for the transfer engine and
// the CLI wrapper around it.
package config

// Config holds the tunables a session needs beyond what the transfer
// request itself carries.
type Config struct {
	// ListenAddress is the address the receiver binds; the CLI has no
	// option to override it.
	ListenAddress string

	// QueueCapacity is the pipeline queue depth. Sessions size their
	// queues with session.QueueCapacity (also 50) and do not read this
	// field.
	QueueCapacity int

	// MaxChunkSize is the chunk size cap. transfer.New caps ChunkSize with
	// transfer.MaxChunkSize (also 4096) and does not read this field.
	MaxChunkSize int

	// StagingDBPath is where the file-staging registry persists its
	// boltdb file.
	StagingDBPath string

	// MetricsAddress, if non-empty, is the loopback address the
	// Prometheus metrics endpoint is served on.
	MetricsAddress string

	// ReconnectRate and ReconnectBurst describe the receiver's per-peer
	// reconnect throttle. NewReceiver builds its limiter with fixed values
	// (2 per second, burst 5) and does not read these fields.
	ReconnectRate  float64
	ReconnectBurst int
}

// DefaultConfig returns the configuration used when the CLI is not given
// overrides.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  ":9443",
		QueueCapacity:  50,
		MaxChunkSize:   4096,
		StagingDBPath:  defaultStagingPath(),
		MetricsAddress: "",
		ReconnectRate:  2,
		ReconnectBurst: 5,
	}
}
