package monitor

import (
	"context"
	"time"
)

// StatePair bundles an unchecked ServiceState with its immediately
// preceding state for the same service, if any. The detector treats a nil
// Prev as "no history" (spec.md §4.4).
type StatePair struct {
	Prev *ServiceState
	Curr ServiceState
}

// Store is the persistence interface consumed by the ingest contracts and
// the supervisor. Implementations: pgstore (PostgreSQL, production) and
// memstore (in-memory, tests and database-less deployments).
//
// Every method that is part of a supervisor step is expected to be
// committable as one unit of work, and the supervisor relies on
// read-your-writes across calls within — and across — ticks (spec.md §4.3,
// §5).
type Store interface {
	// FindServerByName returns (nil, false, nil) when no such server
	// exists.
	FindServerByName(ctx context.Context, name string) (*Server, bool, error)
	CreateServer(ctx context.Context, name, key, ip string) (*Server, error)
	UpdateServerIP(ctx context.Context, serverID int64, ip string) error

	// FindOrCreateService upserts by the (server, name) composite key.
	FindOrCreateService(ctx context.Context, serverID int64, name string) (*Service, error)
	// SetServicePeriod updates a service's advertised reporting period.
	SetServicePeriod(ctx context.Context, serviceID int64, period int) error

	// AppendServiceState appends a new history row for the service and
	// advances its LatestStateID pointer in the same unit of work.
	AppendServiceState(ctx context.Context, serviceID int64, state State, info string, rtime time.Time) (*ServiceState, error)

	// IterateUncheckedStatesAsc yields every ServiceState with
	// checked=false, in ascending id order, paired with its predecessor.
	IterateUncheckedStatesAsc(ctx context.Context) ([]StatePair, error)
	MarkStateChecked(ctx context.Context, stateID int64) error

	// IterateServicesWithPeriodAndState yields services that have both a
	// period and at least one state row, along with that latest state.
	IterateServicesWithPeriodAndState(ctx context.Context) ([]ServiceWithLatest, error)
	SetServiceTimedOut(ctx context.Context, serviceID int64, timedOut bool) error

	// AppendAlert persists a new, unreported alert.
	AppendAlert(ctx context.Context, a *Alert) (*Alert, error)
	// IteratePendingAlertsAsc yields alerts with reported=false, in
	// ascending id order.
	IteratePendingAlertsAsc(ctx context.Context) ([]Alert, error)
	MarkAlertReported(ctx context.Context, alertID int64) error

	// LatestState returns the current state of a service (the row its
	// LatestStateID points to), or (nil, false, nil) if it has none.
	LatestState(ctx context.Context, serviceID int64) (*ServiceState, bool, error)
	GetServer(ctx context.Context, serverID int64) (*Server, bool, error)
	GetService(ctx context.Context, serviceID int64) (*Service, bool, error)

	// Administrative operations; both cascade to owned states/alerts.
	DeleteServer(ctx context.Context, serverID int64) error
	DeleteService(ctx context.Context, serviceID int64) error

	// Read projections backing the /ui/api/status* endpoints.
	ListServers(ctx context.Context) ([]Server, error)
	ListServices(ctx context.Context, serverID *int64) ([]Service, error)
	ListAlerts(ctx context.Context, serverID, serviceID *int64, since time.Time) ([]Alert, error)
	ListServiceStates(ctx context.Context, serviceID int64, since time.Time) ([]ServiceState, error)
}

// ServiceWithLatest pairs a Service with its current (latest) state, as
// yielded by IterateServicesWithPeriodAndState.
type ServiceWithLatest struct {
	Service Service
	Latest  ServiceState
}
