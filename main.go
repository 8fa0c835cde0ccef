package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/autosched/pkg/chunk"
	"github.com/harrisonrobin/autosched/pkg/config"
	"github.com/harrisonrobin/autosched/pkg/google"
	"github.com/harrisonrobin/autosched/pkg/logging"
	"github.com/harrisonrobin/autosched/pkg/scheduler"
	"github.com/harrisonrobin/autosched/pkg/slots"
	"github.com/harrisonrobin/autosched/pkg/store"
	"github.com/harrisonrobin/autosched/pkg/workhours"
)

// app holds what every subcommand needs. It is filled in by the root command's
// PersistentPreRunE.
type app struct {
	cfgPath    string
	userID     string
	dbPath     string
	noCalendar bool

	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
	store    store.Store
	orch     *scheduler.Orchestrator
}

// commands that must work before a store or calendar exists
var skipSetup = map[string]bool{
	"auth": true,
	"help": true,
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "autosched",
		Short:         "autosched - deadline-aware auto-scheduler",
		Long:          `autosched places tasks into free working-hours slots around your calendar and tracks deadline risk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup[cmd.Name()] {
				return a.loadConfig()
			}
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ~/.config/autosched/config.yaml or config.json)")
	root.PersistentFlags().StringVar(&a.userID, "user", "me", "user whose tasks are scheduled")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().BoolVar(&a.noCalendar, "no-calendar", false, "ignore Google Calendar busy time")

	root.AddCommand(
		newAuthCmd(a),
		newScheduleCmd(a),
		newRescheduleCmd(a),
		newETAsCmd(a),
		newConflictsCmd(a),
		newETACmd(a),
		newAgendaCmd(a),
		newImportCmd(a),
		newWorkHoursCmd(a),
		newSchedulesCmd(a),
		newDaemonCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	log, closeLog, err := logging.Open(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile}, os.Stderr)
	if err != nil {
		return err
	}
	a.log, a.closeLog = log, closeLog
	return nil
}

func (a *app) setup(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	dbPath := a.dbPath
	if dbPath == "" {
		dbPath = a.cfg.Database
	}
	st, err := store.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	a.store = st

	orch, err := a.buildOrchestrator(ctx, a.cfg, st)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// buildOrchestrator wires the engine over st. Calendar problems only cost the
// calendar's busy time; the engine still runs.
func (a *app) buildOrchestrator(ctx context.Context, cfg *config.Config, st store.Store) (*scheduler.Orchestrator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []slots.Option{slots.WithLocation(loc), slots.WithLogger(a.log)}
	if !a.noCalendar {
		dir, err := config.Dir()
		if err == nil {
			var cal *google.CalendarReader
			cal, err = google.NewClient(ctx, dir, cfg.CalendarFor, a.log)
			if err == nil {
				opts = append(opts, slots.WithCalendar(cal))
			}
		}
		if err != nil {
			a.log.Warn().Err(err).Msg("calendar disabled")
		}
	}

	finder := slots.NewFinder(st, opts...)
	return scheduler.New(scheduler.Deps{
		Store:    st,
		Resolver: workhours.NewResolver(st, st, a.log),
		Finder:   finder,
		Planner:  chunk.NewPlanner(finder, st, cfg.ChunkMinutes, nil, a.log),
		Log:      a.log,
	}), nil
}

func (a *app) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.closeLog != nil {
		if cerr := a.closeLog(); err == nil {
			err = cerr
		}
		a.closeLog = nil
	}
	return err
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{log: zerolog.Nop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		// PersistentPostRunE is skipped when RunE fails
		_ = a.close()
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
