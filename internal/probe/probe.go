// Package probe implements the agent-side adaptive scheduler, grounded on
// overcli/monitor.py's Service/ServicesMonitor, with goroutines standing
// in for the original's per-service threads.
package probe

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// periodMarginFactor and lagMarginFactor match overcli/monitor.py's
// Service.real_period safety margins.
const (
	periodMarginFactor = 0.8
	lagMarginFactor    = 3.0
)

// Service is one configured probe target: a plugin command run on a
// period, with an observed execution lag feeding back into scheduling.
type Service struct {
	Name    string
	Cwd     string
	Command string
	Period  time.Duration
	MaxLag  time.Duration

	lag        time.Duration
	lastTested time.Time
}

// realPeriod returns the update period after applying the margin factor
// and subtracting either the configured MaxLag or a multiple of the
// observed lag, never going negative.
func (s *Service) realPeriod() time.Duration {
	reserve := time.Duration(float64(s.lag) * lagMarginFactor)
	if s.MaxLag > 0 {
		reserve = s.MaxLag
	}
	p := time.Duration(float64(s.Period) * periodMarginFactor)
	d := p - reserve
	if d < 0 {
		return 0
	}
	return d
}

// nextUpdateIn returns how long until this service is next due, never
// negative. A service that has never been tested is due immediately.
func (s *Service) nextUpdateIn(now time.Time) time.Duration {
	if s.lastTested.IsZero() {
		return 0
	}
	elapsed := now.Sub(s.lastTested)
	d := s.realPeriod() - elapsed
	if d < 0 {
		return 0
	}
	return d
}

// State is the outcome of running one service's plugin.
type State struct {
	Name  string
	State string
	Info  string
}

// Scheduler runs a fixed list of Services, batching the ones whose time
// has come on each Check call.
type Scheduler struct {
	services []*Service
	run      func(ctx context.Context, cwd, command string) (exitCode int, output string, err error)
}

// NewScheduler creates a Scheduler over the given services.
func NewScheduler(services []*Service) *Scheduler {
	return &Scheduler{
		services: services,
		run:      runPlugin,
	}
}

// SleepTime returns how long the caller may sleep before any service
// becomes due (overcli/monitor.py's ServicesMonitor.sleep_time).
func (sch *Scheduler) SleepTime(now time.Time) time.Duration {
	if len(sch.services) == 0 {
		return 0
	}
	min := sch.services[0].nextUpdateIn(now)
	for _, s := range sch.services[1:] {
		if d := s.nextUpdateIn(now); d < min {
			min = d
		}
	}
	return min
}

// Check runs every service whose time has come, in parallel, and returns
// the reporting period and batch of observed states (overcli/monitor.py's
// ServicesMonitor.check). An empty due set returns (0, nil, nil).
func (sch *Scheduler) Check(ctx context.Context, now time.Time) (period time.Duration, states []State, err error) {
	maxLag := sch.maxObservedLag()

	var due []*Service
	for _, s := range sch.services {
		if s.nextUpdateIn(now) <= maxLag {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return 0, nil, nil
	}

	for _, s := range due {
		if s.Period > period {
			period = s.Period
		}
	}

	states = sch.checkServices(ctx, due, now)
	return period, states, nil
}

func (sch *Scheduler) maxObservedLag() time.Duration {
	var max time.Duration
	for _, s := range sch.services {
		if s.lag > max {
			max = s.lag
		}
	}
	return max
}

// checkServices runs each due service's plugin concurrently, recording
// lag and last-tested time as each completes.
func (sch *Scheduler) checkServices(ctx context.Context, due []*Service, now time.Time) []State {
	var (
		mu     sync.Mutex
		states = make([]State, 0, len(due))
		wg     sync.WaitGroup
	)

	for _, s := range due {
		wg.Add(1)
		go func(s *Service) {
			defer wg.Done()
			start := time.Now()
			st := sch.checkOne(ctx, s)
			lag := time.Since(start)

			mu.Lock()
			s.lag = lag
			s.lastTested = now
			states = append(states, st)
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	return states
}

func (sch *Scheduler) checkOne(ctx context.Context, s *Service) State {
	exitCode, output, err := sch.run(ctx, s.Cwd, s.Command)
	if err != nil {
		return State{Name: s.Name, State: "UNK", Info: "failed to execute plugin: " + err.Error()}
	}

	states := []string{"OK", "WARN", "FAIL", "UNK"}
	state := "UNK"
	if exitCode >= 0 && exitCode < len(states) {
		state = states[exitCode]
	}

	return State{Name: s.Name, State: state, Info: strings.TrimRight(output, "\r\n")}
}

// runPlugin spawns command (POSIX-word-split, no shell) in cwd and
// captures combined stdout/stderr, mirroring
// overcli/monitor.py's Service.get_state subprocess invocation.
func runPlugin(ctx context.Context, cwd, command string) (int, string, error) {
	argv, err := splitWords(command)
	if err != nil {
		return -1, "", err
	}
	if len(argv) == 0 {
		return -1, "", errEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil && cmd.ProcessState == nil {
		return -1, "", runErr
	}
	return exitCode, out.String(), nil
}
