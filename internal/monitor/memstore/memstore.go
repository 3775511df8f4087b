// Package memstore provides an in-memory implementation of monitor.Store,
// grounded on the teacher's internal/triage/memstore. Suitable for tests
// and database-less deployments (spec.md §4.3 notes the collector must run
// without a configured database-url).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nodalwatch/sentinel/internal/monitor"
)

// Store holds the entire collector state in memory behind a single mutex.
// Every accessor returns copies so callers can never mutate internal state
// through a returned pointer.
type Store struct {
	mu sync.RWMutex

	servers  map[int64]*monitor.Server
	services map[int64]*monitor.Service
	states   map[int64]*monitor.ServiceState
	alerts   map[int64]*monitor.Alert

	nextServerID  int64
	nextServiceID int64
	nextStateID   int64
	nextAlertID   int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		servers:  make(map[int64]*monitor.Server),
		services: make(map[int64]*monitor.Service),
		states:   make(map[int64]*monitor.ServiceState),
		alerts:   make(map[int64]*monitor.Alert),
	}
}

func (s *Store) FindServerByName(_ context.Context, name string) (*monitor.Server, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, srv := range s.servers {
		if srv.Name == name {
			cp := *srv
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) CreateServer(_ context.Context, name, key, ip string) (*monitor.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextServerID++
	srv := &monitor.Server{ID: s.nextServerID, Name: name, Key: key, IP: ip}
	s.servers[srv.ID] = srv
	cp := *srv
	return &cp, nil
}

func (s *Store) UpdateServerIP(_ context.Context, serverID int64, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[serverID]
	if !ok {
		return &monitor.NotFoundError{Kind: "server", ID: serverID}
	}
	srv.IP = ip
	return nil
}

func (s *Store) FindOrCreateService(_ context.Context, serverID int64, name string) (*monitor.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.ServerID == serverID && svc.Name == name {
			cp := *svc
			return &cp, nil
		}
	}
	s.nextServiceID++
	svc := &monitor.Service{ID: s.nextServiceID, ServerID: serverID, Name: name}
	s.services[svc.ID] = svc
	cp := *svc
	return &cp, nil
}

func (s *Store) SetServicePeriod(_ context.Context, serviceID int64, period int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return &monitor.NotFoundError{Kind: "service", ID: serviceID}
	}
	svc.Period = &period
	return nil
}

func (s *Store) AppendServiceState(_ context.Context, serviceID int64, state monitor.State, info string, rtime time.Time) (*monitor.ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return nil, &monitor.NotFoundError{Kind: "service", ID: serviceID}
	}
	s.nextStateID++
	st := &monitor.ServiceState{ID: s.nextStateID, ServiceID: serviceID, RTime: rtime, State: state, Info: info}
	s.states[st.ID] = st
	svc.LatestStateID = st.ID
	cp := *st
	return &cp, nil
}

func (s *Store) IterateUncheckedStatesAsc(_ context.Context) ([]monitor.StatePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var unchecked []*monitor.ServiceState
	for _, st := range s.states {
		if !st.Checked {
			unchecked = append(unchecked, st)
		}
	}
	sort.Slice(unchecked, func(i, j int) bool { return unchecked[i].ID < unchecked[j].ID })

	pairs := make([]monitor.StatePair, 0, len(unchecked))
	for _, curr := range unchecked {
		prev := s.previousStateLocked(curr.ServiceID, curr.ID)
		pairs = append(pairs, monitor.StatePair{Prev: prev, Curr: *curr})
	}
	return pairs, nil
}

// previousStateLocked returns the highest-id state for serviceID with id
// strictly less than beforeID, or nil. Caller must hold s.mu.
func (s *Store) previousStateLocked(serviceID, beforeID int64) *monitor.ServiceState {
	var best *monitor.ServiceState
	for _, st := range s.states {
		if st.ServiceID != serviceID || st.ID >= beforeID {
			continue
		}
		if best == nil || st.ID > best.ID {
			best = st
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (s *Store) MarkStateChecked(_ context.Context, stateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[stateID]
	if !ok {
		return &monitor.NotFoundError{Kind: "service_state", ID: stateID}
	}
	st.Checked = true
	return nil
}

func (s *Store) IterateServicesWithPeriodAndState(_ context.Context) ([]monitor.ServiceWithLatest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []monitor.ServiceWithLatest
	for _, svc := range s.services {
		if svc.Period == nil || svc.LatestStateID == 0 {
			continue
		}
		st, ok := s.states[svc.LatestStateID]
		if !ok {
			continue
		}
		out = append(out, monitor.ServiceWithLatest{Service: *svc, Latest: *st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service.ID < out[j].Service.ID })
	return out, nil
}

func (s *Store) SetServiceTimedOut(_ context.Context, serviceID int64, timedOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return &monitor.NotFoundError{Kind: "service", ID: serviceID}
	}
	svc.TimedOut = timedOut
	return nil
}

func (s *Store) AppendAlert(_ context.Context, a *monitor.Alert) (*monitor.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAlertID++
	cp := *a
	cp.ID = s.nextAlertID
	s.alerts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) IteratePendingAlertsAsc(_ context.Context) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Alert
	for _, a := range s.alerts {
		if !a.Reported {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkAlertReported(_ context.Context, alertID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return &monitor.NotFoundError{Kind: "alert", ID: alertID}
	}
	a.Reported = true
	return nil
}

func (s *Store) LatestState(_ context.Context, serviceID int64) (*monitor.ServiceState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.LatestStateID == 0 {
		return nil, false, nil
	}
	st, ok := s.states[svc.LatestStateID]
	if !ok {
		return nil, false, nil
	}
	cp := *st
	return &cp, true, nil
}

func (s *Store) GetServer(_ context.Context, serverID int64) (*monitor.Server, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[serverID]
	if !ok {
		return nil, false, nil
	}
	cp := *srv
	return &cp, true, nil
}

func (s *Store) GetService(_ context.Context, serviceID int64) (*monitor.Service, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return nil, false, nil
	}
	cp := *svc
	return &cp, true, nil
}

func (s *Store) DeleteServer(_ context.Context, serverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[serverID]; !ok {
		return &monitor.NotFoundError{Kind: "server", ID: serverID}
	}
	delete(s.servers, serverID)
	for id, svc := range s.services {
		if svc.ServerID == serverID {
			s.deleteServiceLocked(id)
		}
	}
	for id, a := range s.alerts {
		if a.ServerID != nil && *a.ServerID == serverID {
			delete(s.alerts, id)
		}
	}
	return nil
}

func (s *Store) DeleteService(_ context.Context, serviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[serviceID]; !ok {
		return &monitor.NotFoundError{Kind: "service", ID: serviceID}
	}
	s.deleteServiceLocked(serviceID)
	return nil
}

// deleteServiceLocked removes a service, its states, and its alerts.
// Caller must hold s.mu.
func (s *Store) deleteServiceLocked(serviceID int64) {
	delete(s.services, serviceID)
	for id, st := range s.states {
		if st.ServiceID == serviceID {
			delete(s.states, id)
		}
	}
	for id, a := range s.alerts {
		if a.ServiceID != nil && *a.ServiceID == serviceID {
			delete(s.alerts, id)
		}
	}
}

func (s *Store) ListServers(_ context.Context) ([]monitor.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, *srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListServices(_ context.Context, serverID *int64) ([]monitor.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Service, 0, len(s.services))
	for _, svc := range s.services {
		if serverID != nil && svc.ServerID != *serverID {
			continue
		}
		out = append(out, *svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAlerts(_ context.Context, serverID, serviceID *int64, since time.Time) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.CTime.Before(since) {
			continue
		}
		if serverID != nil && (a.ServerID == nil || *a.ServerID != *serverID) {
			continue
		}
		if serviceID != nil && (a.ServiceID == nil || *a.ServiceID != *serviceID) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListServiceStates(_ context.Context, serviceID int64, since time.Time) ([]monitor.ServiceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.ServiceState, 0)
	for _, st := range s.states {
		if st.ServiceID != serviceID || st.RTime.Before(since) {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
