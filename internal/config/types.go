package config

import "github.com/google/uuid"

// LocalHostID is the well-known id of the synthetic host that carries
// every service declared under local_services.
var LocalHostID = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// LocalHostName is the synthetic host's display name.
const LocalHostName = "maremma-local"

// HostCheckKind names the reachability probe used to decide whether a
// host itself is up, independent of any service running on it.
type HostCheckKind string

const (
	HostCheckNone HostCheckKind = "none"
	HostCheckPing HostCheckKind = "ping"
	HostCheckSSH  HostCheckKind = "ssh"
	HostCheckKube HostCheckKind = "kube"
)

// ServiceType names the check runner that executes a service's checks.
type ServiceType string

const (
	ServiceCLI  ServiceType = "cli"
	ServiceSSH  ServiceType = "ssh"
	ServicePing ServiceType = "ping"
	ServiceHTTP ServiceType = "http"
	ServiceTLS  ServiceType = "tls"
)

// KubeHostConfig parameterizes the kube HostCheckKind: the API server
// to dial and treat a /healthz 200 response as host-up.
type KubeHostConfig struct {
	APIHostname string `mapstructure:"api_hostname" validate:"required_if=Check kube"`
	APIPort     int    `mapstructure:"api_port" validate:"required_if=Check kube"`
}

// Host is a monitored machine or endpoint.
type Host struct {
	ID       uuid.UUID         `mapstructure:"id"`
	Name     string            `mapstructure:"name" validate:"required"`
	Hostname string            `mapstructure:"hostname" validate:"required"`
	Check    HostCheckKind     `mapstructure:"check"`
	Kube     *KubeHostConfig   `mapstructure:"kube"`
	Config   map[string]any    `mapstructure:"config"`
	Groups   []string          `mapstructure:"groups"`
}

// HostGroup names a many-to-many bucket linking hosts to services.
type HostGroup struct {
	ID   uuid.UUID `mapstructure:"id"`
	Name string    `mapstructure:"name" validate:"required"`
}

// Service describes a kind of check, scheduled by cron expression and
// fanned out to every host whose group set intersects its own.
type Service struct {
	ID            uuid.UUID      `mapstructure:"id"`
	Name          string         `mapstructure:"name" validate:"required"`
	Description   string         `mapstructure:"description"`
	Type          ServiceType    `mapstructure:"type" validate:"required,oneof=cli ssh ping http tls"`
	CronSchedule  string         `mapstructure:"cron_schedule" validate:"required"`
	Groups        []string       `mapstructure:"groups"`
	ExtraConfig   map[string]any `mapstructure:"extra_config"`
	// local marks a service declared under local_services rather than
	// services; it is implicitly bound to the synthetic local host
	// instead of resolved via group membership.
	local bool
}

// IsLocal reports whether this service was declared under
// local_services and is bound directly to the synthetic local host.
func (s Service) IsLocal() bool { return s.local }

// OIDCConfig configures the optional OpenID Connect auth for the web
// collaborator.
type OIDCConfig struct {
	IssuerURL    string `mapstructure:"issuer_url" validate:"required,url"`
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RedirectURL  string `mapstructure:"redirect_url" validate:"required,url"`
}

// PushoverConfig credentials and arm list for the bundled Pushover
// notifier collaborator. States names one of the CheckStatus strings
// ("critical", "warning", "ok", ...); any status not listed never
// triggers a Pushover message.
type PushoverConfig struct {
	Token   string   `mapstructure:"token" validate:"required_with=UserKey"`
	UserKey string   `mapstructure:"user_key" validate:"required_with=Token"`
	States  []string `mapstructure:"states"`
}

// Configuration is the fully parsed and validated, immutable snapshot
// that every other component reads. New snapshots are produced by
// Load/Reload and swapped atomically; nothing mutates a Configuration
// in place once it is published.
type Configuration struct {
	DatabaseFile  string `mapstructure:"database_file" validate:"required"`
	ListenAddress string `mapstructure:"listen_address"`
	ListenPort    int    `mapstructure:"listen_port"`
	FrontendURL   string `mapstructure:"frontend_url"`

	Hosts      map[string]Host      `mapstructure:"hosts"`
	HostGroups map[string]HostGroup `mapstructure:"host_groups"`
	Services   map[string]Service   `mapstructure:"services"`

	// LocalServices are services bound to the synthetic local host
	// rather than resolved through group membership.
	LocalServices map[string]Service `mapstructure:"local_services"`

	OIDCEnabled bool        `mapstructure:"oidc_enabled"`
	OIDCConfig  *OIDCConfig `mapstructure:"oidc_config"`

	Pushover *PushoverConfig `mapstructure:"pushover"`

	CertFile string `mapstructure:"cert_file"`
	CertKey  string `mapstructure:"cert_key"`

	MaxConcurrentChecks       int `mapstructure:"max_concurrent_checks" validate:"min=1"`
	MaxHistoryEntriesPerCheck int `mapstructure:"max_history_entries_per_check" validate:"min=1"`

	// SessionCacheRedisAddr, when set, fronts session storage with a
	// read-through/write-through Redis cache ahead of the database.
	SessionCacheRedisAddr string `mapstructure:"session_cache_redis_addr"`
}

// HasLocalServices reports whether the synthetic local host should be
// materialized.
func (c *Configuration) HasLocalServices() bool {
	return len(c.LocalServices) > 0
}
