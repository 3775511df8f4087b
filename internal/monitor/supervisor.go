package monitor

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/nodalwatch/sentinel/internal/monitor")

// Notifier is the narrow interface the supervisor needs from a notifier
// fan-out (satisfied by internal/notify.Set).
type Notifier interface {
	Deliver(ctx context.Context, message string) (delivered bool, err error)
}

// Locker is the narrow interface the supervisor needs from the
// cross-process mutex (satisfied by internal/lockfile.Lock).
type Locker interface {
	TryAcquire(ctx context.Context, timeout time.Duration) error
	Release() error
}

// Supervisor is the single-owner background loop of spec.md §4.5: under
// an exclusive lock, it drains unchecked states through the transition
// detector, unseen timeouts through the liveness detector, and pending
// alerts through the notifier set.
type Supervisor struct {
	store      Store
	notifier   Notifier
	lock       Locker
	lockWait   time.Duration
	logger     log.Logger
	metrics    *Metrics
	nowFn      func() time.Time
}

// NewSupervisor creates a Supervisor. lockWait is the bounded wait for
// lock acquisition (spec.md default 2s); pass 0 to use that default.
// metrics may be nil.
func NewSupervisor(store Store, notifier Notifier, lock Locker, lockWait time.Duration, logger log.Logger, metrics *Metrics) *Supervisor {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Supervisor{
		store:    store,
		notifier: notifier,
		lock:     lock,
		lockWait: lockWait,
		logger:   logger,
		metrics:  metrics,
		nowFn:    time.Now,
	}
}

// Tick performs one supervisor iteration: acquire lock, checkStates,
// checkTimeouts, sendPending, release lock. It returns the counts used by
// spec.md §8's scenarios. A tick that cannot acquire its lock is silently
// skipped (spec.md §7's LockUnavailable) and returns (0, 0, nil) — per
// spec.md §4.5/§5, this is expected under supervisor restart overlap, not
// an error condition. Any other failure is logged and swallowed: the loop
// never terminates (spec.md §4.5, §7).
func (s *Supervisor) Tick(ctx context.Context) (newAlerts, sentAlerts int, err error) {
	tickID := ulid.Make().String()
	L := s.logger.With("tick_id", tickID)

	ctx, span := tracer.Start(ctx, "supervisor.tick", trace.WithAttributes(
		attribute.String("sentinel.tick_id", tickID),
	))
	defer span.End()

	start := time.Now()

	if lockErr := s.lock.TryAcquire(ctx, s.lockWait); lockErr != nil {
		L.Info(ctx, "supervisor tick skipped: lock unavailable")
		s.observe("lock_unavailable", 0, time.Since(start))
		return 0, 0, nil
	}
	defer func() {
		if relErr := s.lock.Release(); relErr != nil {
			L.Error(ctx, relErr, "failed to release supervisor lock")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			L.Error(ctx, nil, "supervisor tick panicked, swallowing", "recover", r)
		}
	}()

	newAlerts, err = s.checkStates(ctx, L)
	if err != nil {
		L.Error(ctx, err, "checkStates failed")
		s.observe("error", newAlerts, time.Since(start))
		return newAlerts, 0, nil
	}

	timeoutAlerts, err := s.checkTimeouts(ctx, L)
	if err != nil {
		L.Error(ctx, err, "checkTimeouts failed")
		s.observe("error", newAlerts+timeoutAlerts, time.Since(start))
		return newAlerts + timeoutAlerts, 0, nil
	}
	newAlerts += timeoutAlerts

	sentAlerts, err = s.sendPending(ctx, L)
	if err != nil {
		L.Error(ctx, err, "sendPending failed")
		s.observe("error", newAlerts, time.Since(start))
		return newAlerts, sentAlerts, nil
	}

	s.observe("ok", newAlerts, time.Since(start))
	return newAlerts, sentAlerts, nil
}

func (s *Supervisor) observe(outcome string, newAlerts int, dur time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.TicksTotal.WithLabelValues(outcome).Inc()
	s.metrics.TickDuration.Observe(dur.Seconds())
	s.metrics.NewAlertsTotal.Add(float64(newAlerts))
}

// checkStates drains unchecked states in id order, running the transition
// detector on each (spec.md §4.5 step 3).
func (s *Supervisor) checkStates(ctx context.Context, L log.Logger) (int, error) {
	pairs, err := s.store.IterateUncheckedStatesAsc(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, pair := range pairs {
		descs := DetectTransition(pair.Prev, pair.Curr)
		for _, d := range descs {
			if err := s.persistAlert(ctx, d); err != nil {
				return created, err
			}
			created++
		}
		if err := s.store.MarkStateChecked(ctx, pair.Curr.ID); err != nil {
			return created, err
		}
	}

	L.Info(ctx, "checkStates complete", "checked", len(pairs), "alerts", created)
	return created, nil
}

// checkTimeouts applies the liveness detector to every service with a
// period and a state (spec.md §4.5 step 4).
func (s *Supervisor) checkTimeouts(ctx context.Context, L log.Logger) (int, error) {
	services, err := s.store.IterateServicesWithPeriodAndState(ctx)
	if err != nil {
		return 0, err
	}

	now := s.nowFn()
	created := 0
	timedOut := 0
	for _, sw := range services {
		desc := DetectTimeout(sw.Service, &sw.Latest, now)
		if desc == nil {
			if sw.Service.TimedOut {
				timedOut++
			}
			continue
		}
		if err := s.persistAlert(ctx, *desc); err != nil {
			return created, err
		}
		if err := s.store.SetServiceTimedOut(ctx, sw.Service.ID, desc.Event == "offline"); err != nil {
			return created, err
		}
		if desc.Event == "offline" {
			timedOut++
		}
		created++
	}
	if s.metrics != nil {
		s.metrics.TimedOutGauge.Set(float64(timedOut))
	}

	L.Info(ctx, "checkTimeouts complete", "services", len(services), "alerts", created)
	return created, nil
}

func (s *Supervisor) persistAlert(ctx context.Context, d AlertDescriptor) error {
	a := &Alert{
		ServiceID:      d.ServiceID,
		ServiceStateID: d.ServiceStateID,
		CTime:          s.nowFn().UTC(),
		Channel:        d.Channel,
		Event:          d.Event,
		Message:        d.Message,
	}
	if d.ServiceID != nil {
		svc, ok, err := s.store.GetService(ctx, *d.ServiceID)
		if err != nil {
			return err
		}
		if ok {
			a.ServerID = &svc.ServerID
		}
	}
	_, err := s.store.AppendAlert(ctx, a)
	return err
}

// sendPending drains pending alerts in id order, rendering and delivering
// each before marking the next (spec.md §4.5 step 5, §5's ordering
// guarantee).
func (s *Supervisor) sendPending(ctx context.Context, L log.Logger) (int, error) {
	pending, err := s.store.IteratePendingAlertsAsc(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range pending {
		a := pending[i]
		message, err := s.renderAlert(ctx, &a)
		if err != nil {
			return sent, err
		}

		delivered, delErr := s.notifier.Deliver(ctx, message)
		if delErr != nil {
			L.Error(ctx, delErr, "alert delivery failed fatally", "alert_id", a.ID, "delivered", delivered)
		}
		if !delivered {
			continue
		}

		if err := s.store.MarkAlertReported(ctx, a.ID); err != nil {
			return sent, err
		}
		sent++
		if s.metrics != nil {
			s.metrics.SentAlertsTotal.Inc()
		}
	}

	L.Info(ctx, "sendPending complete", "pending", len(pending), "sent", sent)
	return sent, nil
}

func (s *Supervisor) renderAlert(ctx context.Context, a *Alert) (string, error) {
	var server *Server
	var service *Service
	var latest *ServiceState

	if a.ServerID != nil {
		srv, ok, err := s.store.GetServer(ctx, *a.ServerID)
		if err != nil {
			return "", err
		}
		if ok {
			server = srv
		}
	}
	if a.ServiceID != nil {
		svc, ok, err := s.store.GetService(ctx, *a.ServiceID)
		if err != nil {
			return "", err
		}
		if ok {
			service = svc
			if st, ok, err := s.store.LatestState(ctx, svc.ID); err == nil && ok {
				latest = st
			} else if err != nil {
				return "", err
			}
		}
	}

	return Render(server, service, latest, a), nil
}
