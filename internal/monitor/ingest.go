package monitor

import (
	"context"
	"fmt"
	"time"
)

// ServerSpec identifies a reporting server, as carried in every ingest
// request body (spec.md §4.7).
type ServerSpec struct {
	Name string
	Key  string
}

// ServiceReport is one entry of a service-status batch. Period, when
// non-nil, overrides the batch-level period for this service only.
type ServiceReport struct {
	Name   string
	State  string
	Info   string
	Period *int
}

// AlertReport is one entry of an alert-submission batch.
type AlertReport struct {
	Message string
	Service string // optional; empty means server-scoped
}

func validateServerSpec(s ServerSpec) error {
	if s.Name == "" {
		return validationf(`data: "server.name" should be a non-empty string`)
	}
	if s.Key == "" {
		return validationf(`data: "server.key" should be a non-empty string`)
	}
	return nil
}

// identifyServer finds or lazily creates the reporting server, enforcing
// the key-match invariant from spec.md §3: a mismatched key is a fatal
// AuthError that leaves the existing record untouched.
func identifyServer(ctx context.Context, store Store, spec ServerSpec, ip string) (*Server, error) {
	if err := validateServerSpec(spec); err != nil {
		return nil, err
	}

	server, ok, err := store.FindServerByName(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("find server: %w", err)
	}
	if ok {
		if server.Key != spec.Key {
			return nil, &AuthError{Msg: "invalid server key"}
		}
		if ip != "" && ip != server.IP {
			if err := store.UpdateServerIP(ctx, server.ID, ip); err != nil {
				return nil, fmt.Errorf("update server ip: %w", err)
			}
			server.IP = ip
		}
		return server, nil
	}

	server, err = store.CreateServer(ctx, spec.Name, spec.Key, ip)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	return server, nil
}

// IngestServiceStatus implements spec.md §4.7's service-status upsert.
// Duplicate service names within one batch collapse to a single Service
// row but still produce one ServiceState row per entry, in submitted
// order, with the last Period in the batch winning for that service —
// the original `overc` behavior spec.md §9 requires preserving.
func IngestServiceStatus(ctx context.Context, store Store, spec ServerSpec, peerIP string, batchPeriod int, services []ServiceReport) error {
	server, err := identifyServer(ctx, store, spec, peerIP)
	if err != nil {
		return err
	}

	if len(services) == 0 {
		return validationf(`data: "services" should be a non-empty list`)
	}

	now := time.Now().UTC()

	for _, sr := range services {
		if sr.Name == "" {
			return validationf(`data: service "name" should be a non-empty string`)
		}

		svc, err := store.FindOrCreateService(ctx, server.ID, sr.Name)
		if err != nil {
			return fmt.Errorf("find or create service %q: %w", sr.Name, err)
		}

		period := batchPeriod
		if sr.Period != nil {
			period = *sr.Period
		}
		if err := store.SetServicePeriod(ctx, svc.ID, period); err != nil {
			return fmt.Errorf("set service period: %w", err)
		}

		state, coerced := ParseState(sr.State)
		info := sr.Info
		if coerced {
			info = fmt.Sprintf("%s (sent unsupported state: %q)", info, sr.State)
		}

		if _, err := store.AppendServiceState(ctx, svc.ID, state, info, now); err != nil {
			return fmt.Errorf("append service state: %w", err)
		}
	}

	return nil
}

// IngestAlerts implements spec.md §4.7's alert-submission upsert.
func IngestAlerts(ctx context.Context, store Store, spec ServerSpec, peerIP string, alerts []AlertReport) error {
	server, err := identifyServer(ctx, store, spec, peerIP)
	if err != nil {
		return err
	}

	for _, ar := range alerts {
		if ar.Message == "" {
			return validationf(`data: alert "message" should be a non-empty string`)
		}

		a := &Alert{
			ServerID: &server.ID,
			CTime:    time.Now().UTC(),
			Channel:  "api",
			Event:    "alert",
			Message:  ar.Message,
		}

		if ar.Service != "" {
			svc, err := store.FindOrCreateService(ctx, server.ID, ar.Service)
			if err != nil {
				return fmt.Errorf("find or create service %q: %w", ar.Service, err)
			}
			a.ServiceID = &svc.ID
		}

		if _, err := store.AppendAlert(ctx, a); err != nil {
			return fmt.Errorf("append alert: %w", err)
		}
	}

	return nil
}

// Ping is the authenticated no-op used to verify collector reachability
// (spec.md §6's /api/ping).
func Ping(ctx context.Context, store Store, spec ServerSpec, peerIP string) error {
	_, err := identifyServer(ctx, store, spec, peerIP)
	return err
}
