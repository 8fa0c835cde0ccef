package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/autosched/pkg/config"
	"github.com/harrisonrobin/autosched/pkg/scheduler"
)

const reloadDebounce = 500 * time.Millisecond

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newDaemonCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Reschedule and refresh deadline status on a cron schedule",
		Long:  `Runs a full reschedule plus ETA refresh for every configured user on the config's cron spec. Edits to the config file are picked up without a restart.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &schedDaemon{app: a, cfg: a.cfg, orch: a.orch, log: a.log.With().Str("component", "daemon").Logger()}
			if once {
				d.tick(cmd.Context())
				return nil
			}
			return d.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

type schedDaemon struct {
	app *app
	log zerolog.Logger

	mu   sync.Mutex
	cfg  *config.Config
	orch *scheduler.Orchestrator
	cron *cron.Cron
}

func (d *schedDaemon) run(ctx context.Context) error {
	if err := d.startCron(ctx); err != nil {
		return err
	}
	d.tick(ctx)

	reload := make(chan struct{}, 1)
	path, err := d.configPath()
	if err != nil {
		d.log.Warn().Err(err).Msg("config reload disabled")
	} else {
		go func() {
			if err := watchFile(ctx, path, reload, d.log); err != nil {
				d.log.Warn().Err(err).Str("path", path).Msg("config watcher stopped")
			}
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		d.log.Debug().Err(err).Msg("sd_notify ready failed")
	}
	var watchdog <-chan time.Time
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		watchdog = t.C
	}
	d.log.Info().Str("cron", d.cfg.Cron).Msg("daemon started")

	for {
		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			d.mu.Lock()
			c := d.cron
			d.mu.Unlock()
			<-c.Stop().Done()
			d.log.Info().Msg("daemon stopped")
			return nil
		case <-watchdog:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		case <-reload:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyReloading)
			if err := d.reload(ctx); err != nil {
				d.log.Error().Err(err).Msg("config reload failed, keeping previous config")
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
		}
	}
}

func (d *schedDaemon) configPath() (string, error) {
	if d.app.cfgPath != "" {
		return d.app.cfgPath, nil
	}
	return config.GetConfigPath()
}

// startCron replaces the running cron with one built from the current config.
func (d *schedDaemon) startCron(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc, err := d.cfg.Location()
	if err != nil {
		return err
	}
	clog := cronLogger{d.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(d.cfg.Cron, func() { d.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", d.cfg.Cron, err)
	}

	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.cron = c
	c.Start()
	return nil
}

func (d *schedDaemon) reload(ctx context.Context) error {
	path, err := d.configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, err := cronParser.Parse(cfg.Cron); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", cfg.Cron, err)
	}
	orch, err := d.app.buildOrchestrator(ctx, cfg, d.app.store)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.cfg, d.orch = cfg, orch
	d.mu.Unlock()

	if err := d.startCron(ctx); err != nil {
		return err
	}
	d.log.Info().Str("cron", cfg.Cron).Strs("users", cfg.Users).Msg("config reloaded")
	return nil
}

// tick reschedules every configured user, then refreshes ETAs so tasks the
// scheduler does not own still get an up to date status.
func (d *schedDaemon) tick(ctx context.Context) {
	d.mu.Lock()
	cfg, orch := d.cfg, d.orch
	d.mu.Unlock()

	users := cfg.Users
	if len(users) == 0 {
		users = []string{d.app.userID}
	}

	start := time.Now()
	results, err := orch.RescheduleUsers(ctx, users, "", cfg.Parallelism)
	if err != nil {
		d.log.Error().Err(err).Msg("reschedule failed")
	}
	for _, u := range users {
		res, ok := results[u]
		if !ok {
			continue
		}
		n, err := orch.UpdateAllETAs(ctx, u, "")
		if err != nil {
			d.log.Error().Err(err).Str("user_id", u).Msg("eta refresh failed")
			continue
		}
		d.log.Info().Str("user_id", u).Int("scheduled", res.Scheduled).Int("failed", res.Failed).
			Int("etas_updated", n).Msg("cycle done")
	}
	d.log.Debug().Dur("took", time.Since(start)).Msg("tick finished")
}

// watchFile signals changed whenever path is written, created or renamed. Events
// are debounced; editors often produce several per save.
func watchFile(ctx context.Context, path string, changed chan<- struct{}, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, file := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, fire)
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", dir).Msg("config watch error")
		}
	}
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
