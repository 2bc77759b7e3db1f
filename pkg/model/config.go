package model

// APIServer holds the api server configuration
type APIServer struct {
	Addr string `yaml:"addr" validate:"required"`
	TLS  TLS    `yaml:"tls" validate:"omitempty"`
}

// TLS holds the tls configuration
type TLS struct {
	Enabled      bool   `yaml:"enabled"`
	CertFilePath string `yaml:"cert_file_path" validate:"required_if=Enabled true"`
	KeyFilePath  string `yaml:"key_file_path" validate:"required_if=Enabled true"`
}

// Mongo holds the durable-store connection configuration
type Mongo struct {
	URI string `yaml:"uri" validate:"required"`
}

// KeyValue holds the leader-election fast-path cache connection configuration
type KeyValue struct {
	Addr     string `yaml:"addr" validate:"required"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// Log holds the log configuration
type Log struct {
	Level      string `yaml:"level" default:"info"`
	FolderPath string `yaml:"folder_path"`
}

// OTEL holds the opentelemetry configuration
type OTEL struct {
	Addr    string `yaml:"addr" validate:"required"`
	Type    string `yaml:"type" validate:"required"`
	Timeout int64  `yaml:"timeout" default:"10"`
}

// Common holds configuration shared by every process role (leader and reader alike)
type Common struct {
	Production bool     `yaml:"production"`
	Log        Log      `yaml:"log"`
	Mongo      Mongo    `yaml:"mongo" validate:"required"`
	Tracing    OTEL     `yaml:"tracing" validate:"required"`
	KeyValue   KeyValue `yaml:"key_value" validate:"required"`
}

// ECSDigests carries the four reference ECS digests used to classify a credential schema.
type ECSDigests struct {
	Service string `yaml:"service" validate:"required"`
	Org     string `yaml:"org" validate:"required"`
	Persona string `yaml:"persona" validate:"required"`
	UA      string `yaml:"ua" validate:"required"`
}

// Indexer holds the external indexer client configuration
type Indexer struct {
	BaseURL       string `yaml:"base_url" validate:"required,url"`
	EventsPath    string `yaml:"events_path" default:"/verana/indexer/v1/events"`
	RequestTimout int64  `yaml:"request_timeout_seconds" default:"10"`
}

// Resolver holds the trust-resolver process configuration
type Resolver struct {
	APIServer APIServer `yaml:"api_server" validate:"required"`

	// Role is either "leader" or "reader". Only a leader instance runs the polling loop and
	// mutates durable state.
	Role string `yaml:"role" validate:"required,oneof=leader reader"`

	Indexer Indexer `yaml:"indexer" validate:"required"`

	AllowedEcosystemDIDs []string `yaml:"allowed_ecosystem_dids" validate:"required,min=1,dive,required"`

	PollIntervalSeconds    int64      `yaml:"poll_interval_seconds" default:"5"`
	ObjectCacheTTLSeconds  int64      `yaml:"object_cache_ttl_seconds" default:"86400"`
	TrustTTLSeconds        int64      `yaml:"trust_ttl_seconds" default:"3600"`
	TTLRefreshRatio        float64    `yaml:"ttl_refresh_ratio" default:"0.2"`
	ReattemptRetentionDays int        `yaml:"reattempt_retention_days" default:"7"`
	DisableDigestSRI       bool       `yaml:"disable_digest_sri"`
	ECSDigests             ECSDigests `yaml:"ecs_digests" validate:"required"`

	LeaderLeaseSeconds int64 `yaml:"leader_lease_seconds" default:"15"`
}

// Cfg is the main configuration structure for this application
type Cfg struct {
	Common   Common   `yaml:"common"`
	Resolver Resolver `yaml:"resolver" validate:"required"`
}
