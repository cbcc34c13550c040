package main

import (
	"context"
	"fmt"

	"github.com/maremma/maremma/internal/config"
	"github.com/maremma/maremma/internal/store"
)

// reconcile upserts every host, host group, and service declared in cfg
// into s, then ensures a ServiceCheck row exists for every (host,
// service) pair the configuration implies — group-bound services fan
// out to every host sharing a group, local services bind directly to
// the synthetic local host.
func reconcile(ctx context.Context, s store.Store, cfg *config.Configuration) error {
	for _, g := range cfg.HostGroups {
		if err := s.UpsertHostGroup(ctx, store.HostGroup{ID: g.ID, Name: g.Name}); err != nil {
			return fmt.Errorf("upsert host group %s: %w", g.Name, err)
		}
	}

	for _, h := range cfg.Hosts {
		host := store.Host{
			ID:       h.ID,
			Name:     h.Name,
			Hostname: h.Hostname,
			Check:    string(h.Check),
			Config:   hostConfig(h),
		}
		if err := s.UpsertHost(ctx, host, h.Groups); err != nil {
			return fmt.Errorf("upsert host %s: %w", h.Name, err)
		}
	}

	for _, svc := range cfg.Services {
		storeSvc := store.Service{
			ID:           svc.ID,
			Name:         svc.Name,
			Description:  svc.Description,
			Type:         string(svc.Type),
			CronSchedule: svc.CronSchedule,
			ExtraConfig:  svc.ExtraConfig,
		}
		if err := s.UpsertService(ctx, storeSvc, svc.Groups); err != nil {
			return fmt.Errorf("upsert service %s: %w", svc.Name, err)
		}
		if err := s.ReconcileServiceChecks(ctx, config.LocalHostID, svc.ID, false); err != nil {
			return fmt.Errorf("reconcile checks for service %s: %w", svc.Name, err)
		}
	}

	for _, svc := range cfg.LocalServices {
		storeSvc := store.Service{
			ID:           svc.ID,
			Name:         svc.Name,
			Description:  svc.Description,
			Type:         string(svc.Type),
			CronSchedule: svc.CronSchedule,
			ExtraConfig:  svc.ExtraConfig,
		}
		if err := s.UpsertService(ctx, storeSvc, nil); err != nil {
			return fmt.Errorf("upsert local service %s: %w", svc.Name, err)
		}
		if err := s.ReconcileServiceChecks(ctx, config.LocalHostID, svc.ID, true); err != nil {
			return fmt.Errorf("reconcile checks for local service %s: %w", svc.Name, err)
		}
	}

	return nil
}

func hostConfig(h config.Host) map[string]any {
	if h.Kube == nil {
		return h.Config
	}
	cfg := make(map[string]any, len(h.Config)+2)
	for k, v := range h.Config {
		cfg[k] = v
	}
	cfg["api_hostname"] = h.Kube.APIHostname
	cfg["api_port"] = h.Kube.APIPort
	return cfg
}
