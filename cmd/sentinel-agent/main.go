// sentinel-agent reports service status and alerts to a Sentinel
// collector: either as one-shot commands or as a continuous monitor loop
// driven by a YAML configuration file, grounded on overcli/commands.py's
// ping/service-status/alert/monitor subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nodalwatch/sentinel/internal/probe"
	"github.com/nodalwatch/sentinel/internal/reporter"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sentinel-agent <ping|service-status|alert|monitor> [flags]")
	}

	switch args[0] {
	case "ping":
		return runPing(args[1:])
	case "service-status":
		return runServiceStatus(args[1:])
	case "alert":
		return runAlert(args[1:])
	case "monitor":
		return runMonitor(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// identityFlags registers the -server/-name/-key flags shared by the
// one-shot subcommands, mirroring overcli's -s/-i global options.
func identityFlags(fs *flag.FlagSet) (server, name, key *string) {
	server = fs.String("server", "", "collector base URL, e.g. http://collector:8080")
	name = fs.String("name", "", "this server's registered name")
	key = fs.String("key", "", "this server's shared key")
	return
}

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	server, name, key := identityFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client := newClient(*server, *name, *key)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runServiceStatus(args []string) error {
	fs := flag.NewFlagSet("service-status", flag.ExitOnError)
	server, name, key := identityFlags(fs)
	period := fs.Int("period", 60, "reporting period in seconds")
	serviceName := fs.String("service", "", "service name")
	state := fs.String("state", "", "service state: OK, WARN, FAIL, or UNK")
	info := fs.String("info", "", "additional information")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serviceName == "" || *state == "" {
		return fmt.Errorf("service-status: -service and -state are required")
	}

	client := newClient(*server, *name, *key)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.SetServiceStatus(ctx, *period, []reporter.ServiceReport{
		{Name: *serviceName, State: *state, Info: *info},
	})
}

func runAlert(args []string) error {
	fs := flag.NewFlagSet("alert", flag.ExitOnError)
	server, name, key := identityFlags(fs)
	serviceName := fs.String("service", "", "service this alert concerns (optional)")
	message := fs.String("message", "", "alert message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *message == "" {
		return fmt.Errorf("alert: -message is required")
	}

	client := newClient(*server, *name, *key)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.SetAlerts(ctx, []reporter.AlertReport{
		{Service: *serviceName, Message: *message},
	})
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sentinel-agent monitor <config.yaml>")
	}

	fc, err := probe.LoadConfigFile(fs.Arg(0))
	if err != nil {
		return err
	}
	services, err := fc.BuildServices()
	if err != nil {
		return err
	}

	client := newClient(fc.Server.URL, fc.Server.Name, fc.Server.Key)
	scheduler := probe.NewScheduler(services)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		now := time.Now()
		sleep := scheduler.SleepTime(now)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}

		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		period, states, err := scheduler.Check(checkCtx, time.Now())
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "check failed:", err)
			continue
		}
		if len(states) == 0 {
			continue
		}

		reports := make([]reporter.ServiceReport, 0, len(states))
		for _, st := range states {
			reports = append(reports, reporter.ServiceReport{Name: st.Name, State: st.State, Info: st.Info})
		}

		reportCtx, reportCancel := context.WithTimeout(ctx, 10*time.Second)
		err = client.SetServiceStatus(reportCtx, int(period.Seconds()), reports)
		reportCancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "report failed:", err)
		}
	}
}

func newClient(server, name, key string) *reporter.Client {
	server = strings.TrimRight(server, "/")
	return reporter.New(server, reporter.ServerIdentity{Name: name, Key: key})
}
