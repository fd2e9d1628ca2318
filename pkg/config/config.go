package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                string // connection string for the database
	NatsURL           string // URL of the NATS server
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogFilters        string // zapfilter rules applied to the default logger
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	ProfilingPort     int    // port for profiling
	PrintMessage      bool   // if true, the frame payload will be print on debug level
	Proxy             string // broadcast proxy implementation (local, nats)
	SessionTTL        string // duration of inactivity after which a session is evicted
	EvictionInterval  string // cadence of the registry eviction sweep
	PipelineQueueSize int    // per-session bounded queue size for the pipeline
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintMessage bool // if true, the frame payload will be print on debug level
}
