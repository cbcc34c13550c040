// Package config loads, validates, and hot-reloads maremma's
// configuration: the set of hosts, host groups, and services that the
// scheduler, broker, and web collaborator all read from a shared,
// atomically-swapped snapshot.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/maremma/maremma/internal/merrors"
)

var validate = validator.New()

// configParser mirrors Configuration's shape for unmarshalling via
// Viper, before IDs are assigned and the synthetic local host is
// folded in. Kept separate from Configuration because the parser's
// maps use string keys chosen by the config author (e.g. "web-01")
// while Configuration's Host/Service/HostGroup carry their own
// generated uuid.UUID identity.
type configParser struct {
	DatabaseFile  string                 `mapstructure:"database_file"`
	ListenAddress string                 `mapstructure:"listen_address"`
	ListenPort    int                    `mapstructure:"listen_port"`
	FrontendURL   string                 `mapstructure:"frontend_url"`
	Hosts         map[string]Host        `mapstructure:"hosts"`
	HostGroups    map[string]HostGroup   `mapstructure:"host_groups"`
	Services      map[string]Service     `mapstructure:"services"`
	LocalServices map[string]Service     `mapstructure:"local_services"`
	OIDCEnabled   bool                   `mapstructure:"oidc_enabled"`
	OIDCConfig    *OIDCConfig            `mapstructure:"oidc_config"`
	Pushover      *PushoverConfig        `mapstructure:"pushover"`
	CertFile      string                 `mapstructure:"cert_file"`
	CertKey       string                 `mapstructure:"cert_key"`
	MaxConcurrentChecks       int        `mapstructure:"max_concurrent_checks"`
	MaxHistoryEntriesPerCheck int        `mapstructure:"max_history_entries_per_check"`
	SessionCacheRedisAddr     string     `mapstructure:"session_cache_redis_addr"`
}

// Load reads, parses, and validates the configuration file at path,
// returning an immutable Configuration snapshot.
//
// Errors are wrapped with one of merrors.ErrConfigFileNotFound,
// merrors.ErrConfigParse, or merrors.ErrConfiguration depending on
// which stage fails.
func Load(path string) (*Configuration, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", merrors.ErrConfigFileNotFound, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MAREMMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConfigParse, err)
	}

	var parsed configParser
	if err := v.Unmarshal(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConfigParse, err)
	}

	cfg, err := buildConfiguration(&parsed)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromJSON parses configuration from an in-memory JSON document,
// skipping the file-existence check. Used by tests and by the web
// collaborator's reload endpoint when the caller already has the raw
// bytes in hand.
func LoadFromJSON(data []byte) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("MAREMMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConfigParse, err)
	}

	var parsed configParser
	if err := v.Unmarshal(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrConfigParse, err)
	}

	cfg, err := buildConfiguration(&parsed)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_address", "0.0.0.0")
	v.SetDefault("listen_port", 8888)
	v.SetDefault("max_concurrent_checks", defaultMaxConcurrentChecks())
	v.SetDefault("max_history_entries_per_check", 25000)
}

func defaultMaxConcurrentChecks() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// buildConfiguration assigns ids to maps keyed by author-chosen names,
// folds local_services under the synthetic local host, and otherwise
// copies the parsed fields verbatim.
func buildConfiguration(p *configParser) (*Configuration, error) {
	cfg := &Configuration{
		DatabaseFile:              p.DatabaseFile,
		ListenAddress:             p.ListenAddress,
		ListenPort:                p.ListenPort,
		FrontendURL:               p.FrontendURL,
		OIDCEnabled:               p.OIDCEnabled,
		OIDCConfig:                p.OIDCConfig,
		Pushover:                  p.Pushover,
		CertFile:                  p.CertFile,
		CertKey:                   p.CertKey,
		MaxConcurrentChecks:       p.MaxConcurrentChecks,
		MaxHistoryEntriesPerCheck: p.MaxHistoryEntriesPerCheck,
		SessionCacheRedisAddr:     p.SessionCacheRedisAddr,
		Hosts:                     make(map[string]Host, len(p.Hosts)),
		HostGroups:                make(map[string]HostGroup, len(p.HostGroups)),
		Services:                  make(map[string]Service, len(p.Services)),
		LocalServices:             make(map[string]Service, len(p.LocalServices)),
	}

	for name, hg := range p.HostGroups {
		if hg.ID == uuid.Nil {
			hg.ID = deterministicID("host_group", name)
		}
		hg.Name = name
		cfg.HostGroups[name] = hg
	}

	for name, h := range p.Hosts {
		if h.ID == uuid.Nil {
			h.ID = deterministicID("host", name)
		}
		if h.Hostname == "" {
			h.Hostname = name
		}
		if h.Check == "" {
			h.Check = HostCheckPing
		}
		cfg.Hosts[name] = h
	}

	for name, s := range p.Services {
		if s.ID == uuid.Nil {
			s.ID = deterministicID("service", name)
		}
		cfg.Services[name] = s
	}

	for name, s := range p.LocalServices {
		if s.ID == uuid.Nil {
			s.ID = deterministicID("local_service", name)
		}
		s.local = true
		cfg.LocalServices[name] = s
	}

	if cfg.HasLocalServices() {
		if _, exists := cfg.Hosts[LocalHostName]; !exists {
			cfg.Hosts[LocalHostName] = Host{
				ID:       LocalHostID,
				Name:     LocalHostName,
				Hostname: "localhost",
				Check:    HostCheckNone,
			}
		}
	}

	return cfg, nil
}

// deterministicID derives a stable uuid from a config-author-chosen
// name so that repeated loads of an unchanged file produce identical
// ids (required for the Broker/store to recognize "the same" host or
// service across a reload rather than treating every reload as a
// fresh population).
func deterministicID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("maremma:"+kind+":"+name))
}

// Validate runs struct-tag validation followed by maremma's
// hand-written semantic checks: frontend_url scheme, OIDC
// completeness, and dangling group references.
func Validate(cfg *Configuration) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", merrors.ErrConfiguration, err)
	}

	if cfg.FrontendURL != "" && !strings.HasPrefix(cfg.FrontendURL, "https://") {
		return fmt.Errorf("%w: frontend_url must use https", merrors.ErrConfiguration)
	}

	if cfg.OIDCEnabled && cfg.OIDCConfig == nil {
		return fmt.Errorf("%w: oidc_enabled requires oidc_config", merrors.ErrConfiguration)
	}

	for name, svc := range cfg.Services {
		for _, group := range svc.Groups {
			if _, ok := cfg.HostGroups[group]; !ok {
				return fmt.Errorf("%w: service %q references undefined host group %q", merrors.ErrConfiguration, name, group)
			}
		}
	}

	for name, host := range cfg.Hosts {
		for _, group := range host.Groups {
			if _, ok := cfg.HostGroups[group]; !ok {
				return fmt.Errorf("%w: host %q references undefined host group %q", merrors.ErrConfiguration, name, group)
			}
		}
		if host.Check == HostCheckKube && host.Kube == nil {
			return fmt.Errorf("%w: host %q has check=kube but no kube config", merrors.ErrConfiguration, name)
		}
	}

	return nil
}
