// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging level, CORS); everything
// about groups, identity and the store lives here.
type AppConfig struct {
	// Store selection. "memory" keeps everything in process and is meant
	// for local development and demos.
	StoreBackend string

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017/?replicaSet=rs0)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Identity: HS256 bearer tokens issued by the external identity service
	JWTSecret string
	JWTIssuer string // blank skips the issuer check

	// LogWindow is how many recent history entries a view loads.
	LogWindow int

	// Audit logging: "log" or "off" per category
	AuditLogTurns  string
	AuditLogRoster string

	// Timeout overrides; zero keeps the default
	TimeoutPing        time.Duration
	TimeoutFetch       time.Duration
	TimeoutQuery       time.Duration
	TimeoutTransaction time.Duration

	// History retention. Zero keeps history forever.
	HistoryRetention     time.Duration
	HistoryPruneInterval time.Duration

	// Per-uid cap on state-changing requests and stream actions per
	// RateLimitWindow. Zero disables limiting.
	RateLimitWrites int
	RateLimitWindow time.Duration

	// WebSocket origins allowed besides the serving host. "*" allows any.
	StreamAllowedOrigins []string
}
