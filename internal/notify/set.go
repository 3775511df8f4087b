package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

// Plugin is one configured notifier: a name for logging, a working
// directory, and the command string to split and run.
type Plugin struct {
	Name    string
	Cwd     string
	Command string
}

// Set is an ordered list of notifier plugins, implementing the two-pass
// escalation-on-failure dispatch of spec.md §4.2. Any single working
// notifier is sufficient to surface the presence of broken ones.
type Set struct {
	plugins []Plugin
	runner  func(cwd string) pluginRunner
	logger  log.Logger
}

type pluginRunner interface {
	Run(ctx context.Context, name, command, message string) (Result, error)
}

// New creates a notifier set from the given ordered plugin list.
func New(plugins []Plugin, logger log.Logger) *Set {
	if logger == nil {
		logger = log.Nop()
	}
	return &Set{
		plugins: plugins,
		runner:  func(cwd string) pluginRunner { return &Runner{Cwd: cwd} },
		logger:  logger,
	}
}

type failure struct {
	name string
	err  error
}

// Deliver runs message through every notifier in order. delivered is true
// iff at least one notifier succeeded on the first pass (the signal the
// supervisor uses to decide whether to mark the originating alert
// reported). err is non-nil only in the ErrFatalDelivery case: every
// notifier failed on the escalation pass, which runs only after at least
// one first-pass failure.
func (s *Set) Deliver(ctx context.Context, message string) (delivered bool, err error) {
	failures := s.dispatch(ctx, message)
	if len(failures) == 0 {
		return true, nil
	}

	delivered = len(failures) < len(s.plugins)

	escalation := renderEscalation(failures)
	secondFailures := s.dispatch(ctx, escalation)

	if len(secondFailures) == len(s.plugins) {
		s.logger.Error(ctx, &ErrFatalDelivery{Message: escalation}, "all notifiers failed on escalation pass")
		return delivered, &ErrFatalDelivery{Message: escalation}
	}

	return delivered, nil
}

// dispatch runs message through every plugin independently, in order,
// collecting failures without stopping early.
func (s *Set) dispatch(ctx context.Context, message string) []failure {
	var failures []failure
	for _, p := range s.plugins {
		r := s.runner(p.Cwd)
		if _, err := r.Run(ctx, p.Name, p.Command, message); err != nil {
			s.logger.Error(ctx, err, "notifier plugin failed", "plugin", p.Name)
			failures = append(failures, failure{name: p.Name, err: err})
		}
	}
	return failures
}

func renderEscalation(failures []failure) string {
	lines := make([]string, 0, len(failures)+1)
	lines = append(lines, "Alert notifier failures:")
	for _, f := range failures {
		lines = append(lines, fmt.Sprintf("Alert plugin `%s` failed: %v", f.name, f.err))
	}
	return strings.Join(lines, "\n")
}
