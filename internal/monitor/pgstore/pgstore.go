// Package pgstore provides a PostgreSQL implementation of monitor.Store,
// grounded on the teacher's internal/triage/pgstore.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodalwatch/sentinel/internal/monitor"
)

var tracer = otel.Tracer("github.com/nodalwatch/sentinel/internal/monitor/pgstore")

//go:embed schema.sql
var schema string

// Store persists the collector's entire state model in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema to an already-connected pool and returns a ready
// Store. The pool's lifecycle (including Close) belongs to the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) FindServerByName(ctx context.Context, name string) (*monitor.Server, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.FindServerByName", "SELECT")
	defer func() { finishSpan(span, nil) }()

	var srv monitor.Server
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, key, title, ip FROM servers WHERE name = $1`, name,
	).Scan(&srv.ID, &srv.Name, &srv.Key, &srv.Title, &srv.IP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find server by name: %w", err)
	}
	return &srv, true, nil
}

func (s *Store) CreateServer(ctx context.Context, name, key, ip string) (*monitor.Server, error) {
	ctx, span := startSpan(ctx, "pgstore.CreateServer", "INSERT")
	defer func() { finishSpan(span, nil) }()

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO servers (name, key, ip) VALUES ($1, $2, $3) RETURNING id`,
		name, key, ip,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	return &monitor.Server{ID: id, Name: name, Key: key, IP: ip}, nil
}

func (s *Store) UpdateServerIP(ctx context.Context, serverID int64, ip string) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateServerIP", "UPDATE")
	defer func() { finishSpan(span, nil) }()

	_, err := s.pool.Exec(ctx, `UPDATE servers SET ip = $1 WHERE id = $2`, ip, serverID)
	if err != nil {
		return fmt.Errorf("update server ip: %w", err)
	}
	return nil
}

func (s *Store) FindOrCreateService(ctx context.Context, serverID int64, name string) (*monitor.Service, error) {
	ctx, span := startSpan(ctx, "pgstore.FindOrCreateService", "UPSERT")
	defer func() { finishSpan(span, nil) }()

	var svc monitor.Service
	var period *int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO services (server_id, name) VALUES ($1, $2)
		 ON CONFLICT (server_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, server_id, name, title, period, timed_out, COALESCE(latest_state_id, 0)`,
		serverID, name,
	).Scan(&svc.ID, &svc.ServerID, &svc.Name, &svc.Title, &period, &svc.TimedOut, &svc.LatestStateID)
	if err != nil {
		return nil, fmt.Errorf("find or create service: %w", err)
	}
	svc.Period = period
	return &svc, nil
}

func (s *Store) SetServicePeriod(ctx context.Context, serviceID int64, period int) error {
	ctx, span := startSpan(ctx, "pgstore.SetServicePeriod", "UPDATE")
	defer func() { finishSpan(span, nil) }()

	_, err := s.pool.Exec(ctx, `UPDATE services SET period = $1 WHERE id = $2`, period, serviceID)
	if err != nil {
		return fmt.Errorf("set service period: %w", err)
	}
	return nil
}

func (s *Store) AppendServiceState(ctx context.Context, serviceID int64, state monitor.State, info string, rtime time.Time) (*monitor.ServiceState, error) {
	ctx, span := startSpan(ctx, "pgstore.AppendServiceState", "INSERT")
	defer func() { finishSpan(span, nil) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var st monitor.ServiceState
	err = tx.QueryRow(ctx,
		`INSERT INTO service_states (service_id, rtime, state, info)
		 VALUES ($1, $2, $3, $4) RETURNING id, service_id, rtime, state, info, checked`,
		serviceID, rtime, string(state), info,
	).Scan(&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked)
	if err != nil {
		return nil, fmt.Errorf("insert service_state: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE services SET latest_state_id = $1 WHERE id = $2`, st.ID, serviceID); err != nil {
		return nil, fmt.Errorf("advance latest_state_id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &st, nil
}

func (s *Store) IterateUncheckedStatesAsc(ctx context.Context) ([]monitor.StatePair, error) {
	ctx, span := startSpan(ctx, "pgstore.IterateUncheckedStatesAsc", "SELECT")
	defer func() { finishSpan(span, nil) }()

	rows, err := s.pool.Query(ctx,
		`SELECT id, service_id, rtime, state, info, checked FROM service_states
		 WHERE NOT checked ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query unchecked states: %w", err)
	}
	defer rows.Close()

	var currs []monitor.ServiceState
	for rows.Next() {
		var st monitor.ServiceState
		if err := rows.Scan(&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked); err != nil {
			return nil, fmt.Errorf("scan service_state: %w", err)
		}
		currs = append(currs, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unchecked states: %w", err)
	}

	pairs := make([]monitor.StatePair, 0, len(currs))
	for _, curr := range currs {
		prev, err := s.previousState(ctx, curr.ServiceID, curr.ID)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, monitor.StatePair{Prev: prev, Curr: curr})
	}
	return pairs, nil
}

func (s *Store) previousState(ctx context.Context, serviceID, beforeID int64) (*monitor.ServiceState, error) {
	var st monitor.ServiceState
	err := s.pool.QueryRow(ctx,
		`SELECT id, service_id, rtime, state, info, checked FROM service_states
		 WHERE service_id = $1 AND id < $2 ORDER BY id DESC LIMIT 1`,
		serviceID, beforeID,
	).Scan(&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous state: %w", err)
	}
	return &st, nil
}

func (s *Store) MarkStateChecked(ctx context.Context, stateID int64) error {
	ctx, span := startSpan(ctx, "pgstore.MarkStateChecked", "UPDATE")
	defer func() { finishSpan(span, nil) }()

	_, err := s.pool.Exec(ctx, `UPDATE service_states SET checked = TRUE WHERE id = $1`, stateID)
	if err != nil {
		return fmt.Errorf("mark state checked: %w", err)
	}
	return nil
}

func (s *Store) IterateServicesWithPeriodAndState(ctx context.Context) ([]monitor.ServiceWithLatest, error) {
	ctx, span := startSpan(ctx, "pgstore.IterateServicesWithPeriodAndState", "SELECT")
	defer func() { finishSpan(span, nil) }()

	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.server_id, s.name, s.title, s.period, s.timed_out, s.latest_state_id,
		        st.id, st.service_id, st.rtime, st.state, st.info, st.checked
		 FROM services s
		 JOIN service_states st ON st.id = s.latest_state_id
		 WHERE s.period IS NOT NULL
		 ORDER BY s.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query services with period and state: %w", err)
	}
	defer rows.Close()

	var out []monitor.ServiceWithLatest
	for rows.Next() {
		var (
			svc    monitor.Service
			period *int
			st     monitor.ServiceState
		)
		if err := rows.Scan(
			&svc.ID, &svc.ServerID, &svc.Name, &svc.Title, &period, &svc.TimedOut, &svc.LatestStateID,
			&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked,
		); err != nil {
			return nil, fmt.Errorf("scan service with latest: %w", err)
		}
		svc.Period = period
		out = append(out, monitor.ServiceWithLatest{Service: svc, Latest: st})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services with period and state: %w", err)
	}
	return out, nil
}

func (s *Store) SetServiceTimedOut(ctx context.Context, serviceID int64, timedOut bool) error {
	ctx, span := startSpan(ctx, "pgstore.SetServiceTimedOut", "UPDATE")
	defer func() { finishSpan(span, nil) }()

	_, err := s.pool.Exec(ctx, `UPDATE services SET timed_out = $1 WHERE id = $2`, timedOut, serviceID)
	if err != nil {
		return fmt.Errorf("set service timed out: %w", err)
	}
	return nil
}

func (s *Store) AppendAlert(ctx context.Context, a *monitor.Alert) (*monitor.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.AppendAlert", "INSERT")
	defer func() { finishSpan(span, nil) }()

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO alerts (server_id, service_id, service_state_id, ctime, channel, event, message, reported)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE) RETURNING id`,
		a.ServerID, a.ServiceID, a.ServiceStateID, a.CTime, a.Channel, a.Event, a.Message,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("append alert: %w", err)
	}
	out := *a
	out.ID = id
	out.Reported = false
	return &out, nil
}

func (s *Store) IteratePendingAlertsAsc(ctx context.Context) ([]monitor.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.IteratePendingAlertsAsc", "SELECT")
	defer func() { finishSpan(span, nil) }()

	rows, err := s.pool.Query(ctx,
		`SELECT id, server_id, service_id, service_state_id, ctime, channel, event, message, reported
		 FROM alerts WHERE NOT reported ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending alerts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending alerts: %w", err)
	}
	return out, nil
}

func (s *Store) MarkAlertReported(ctx context.Context, alertID int64) error {
	ctx, span := startSpan(ctx, "pgstore.MarkAlertReported", "UPDATE")
	defer func() { finishSpan(span, nil) }()

	_, err := s.pool.Exec(ctx, `UPDATE alerts SET reported = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("mark alert reported: %w", err)
	}
	return nil
}

func (s *Store) LatestState(ctx context.Context, serviceID int64) (*monitor.ServiceState, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.LatestState", "SELECT")
	defer func() { finishSpan(span, nil) }()

	var st monitor.ServiceState
	err := s.pool.QueryRow(ctx,
		`SELECT st.id, st.service_id, st.rtime, st.state, st.info, st.checked
		 FROM services s JOIN service_states st ON st.id = s.latest_state_id
		 WHERE s.id = $1`,
		serviceID,
	).Scan(&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest state: %w", err)
	}
	return &st, true, nil
}

func (s *Store) GetServer(ctx context.Context, serverID int64) (*monitor.Server, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetServer", "SELECT")
	defer func() { finishSpan(span, nil) }()

	var srv monitor.Server
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, key, title, ip FROM servers WHERE id = $1`, serverID,
	).Scan(&srv.ID, &srv.Name, &srv.Key, &srv.Title, &srv.IP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get server: %w", err)
	}
	return &srv, true, nil
}

func (s *Store) GetService(ctx context.Context, serviceID int64) (*monitor.Service, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetService", "SELECT")
	defer func() { finishSpan(span, nil) }()

	var svc monitor.Service
	var period *int
	err := s.pool.QueryRow(ctx,
		`SELECT id, server_id, name, title, period, timed_out, COALESCE(latest_state_id, 0)
		 FROM services WHERE id = $1`, serviceID,
	).Scan(&svc.ID, &svc.ServerID, &svc.Name, &svc.Title, &period, &svc.TimedOut, &svc.LatestStateID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get service: %w", err)
	}
	svc.Period = period
	return &svc, true, nil
}

func (s *Store) DeleteServer(ctx context.Context, serverID int64) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteServer", "DELETE")
	defer func() { finishSpan(span, nil) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM servers WHERE id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &monitor.NotFoundError{Kind: "server", ID: serverID}
	}
	return nil
}

func (s *Store) DeleteService(ctx context.Context, serviceID int64) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteService", "DELETE")
	defer func() { finishSpan(span, nil) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, serviceID)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &monitor.NotFoundError{Kind: "service", ID: serviceID}
	}
	return nil
}

func (s *Store) ListServers(ctx context.Context) ([]monitor.Server, error) {
	ctx, span := startSpan(ctx, "pgstore.ListServers", "SELECT")
	defer func() { finishSpan(span, nil) }()

	rows, err := s.pool.Query(ctx, `SELECT id, name, key, title, ip FROM servers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []monitor.Server
	for rows.Next() {
		var srv monitor.Server
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Key, &srv.Title, &srv.IP); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *Store) ListServices(ctx context.Context, serverID *int64) ([]monitor.Service, error) {
	ctx, span := startSpan(ctx, "pgstore.ListServices", "SELECT")
	defer func() { finishSpan(span, nil) }()

	query := `SELECT id, server_id, name, title, period, timed_out, COALESCE(latest_state_id, 0) FROM services`
	args := []any{}
	if serverID != nil {
		query += ` WHERE server_id = $1`
		args = append(args, *serverID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []monitor.Service
	for rows.Next() {
		var svc monitor.Service
		var period *int
		if err := rows.Scan(&svc.ID, &svc.ServerID, &svc.Name, &svc.Title, &period, &svc.TimedOut, &svc.LatestStateID); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		svc.Period = period
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) ListAlerts(ctx context.Context, serverID, serviceID *int64, since time.Time) ([]monitor.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAlerts", "SELECT")
	defer func() { finishSpan(span, nil) }()

	query := `SELECT id, server_id, service_id, service_state_id, ctime, channel, event, message, reported
	          FROM alerts WHERE ctime >= $1`
	args := []any{since}
	if serverID != nil {
		args = append(args, *serverID)
		query += fmt.Sprintf(" AND server_id = $%d", len(args))
	}
	if serviceID != nil {
		args = append(args, *serviceID)
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListServiceStates(ctx context.Context, serviceID int64, since time.Time) ([]monitor.ServiceState, error) {
	ctx, span := startSpan(ctx, "pgstore.ListServiceStates", "SELECT")
	defer func() { finishSpan(span, nil) }()

	rows, err := s.pool.Query(ctx,
		`SELECT id, service_id, rtime, state, info, checked FROM service_states
		 WHERE service_id = $1 AND rtime >= $2 ORDER BY id ASC`,
		serviceID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list service states: %w", err)
	}
	defer rows.Close()

	var out []monitor.ServiceState
	for rows.Next() {
		var st monitor.ServiceState
		if err := rows.Scan(&st.ID, &st.ServiceID, &st.RTime, &st.State, &st.Info, &st.Checked); err != nil {
			return nil, fmt.Errorf("scan service state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanAlert(rows pgx.Rows) (monitor.Alert, error) {
	var a monitor.Alert
	if err := rows.Scan(&a.ID, &a.ServerID, &a.ServiceID, &a.ServiceStateID, &a.CTime, &a.Channel, &a.Event, &a.Message, &a.Reported); err != nil {
		return monitor.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	return a, nil
}
