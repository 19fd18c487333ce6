package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sqlscript/internal/agent"
	"github.com/roach88/sqlscript/internal/alert"
	"github.com/roach88/sqlscript/internal/api"
	"github.com/roach88/sqlscript/internal/config"
	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/engine/embedded"
	"github.com/roach88/sqlscript/internal/engine/generic"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/schedule"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/urlqueue"
)

// NewRegistry returns a registry holding both adapters.
func NewRegistry(strict bool, logger *slog.Logger) *engine.Registry {
	return engine.NewRegistry(
		embedded.New(embedded.WithStrict(strict), embedded.WithLogger(logger)),
		generic.New(generic.WithLogger(logger)),
	)
}

// App is a configuration turned into runnable components.
type App struct {
	Config *config.Config
	Exec   *executor.Executor
	Init   []*script.Script
	Agents []*agent.Agent
	Queues []*urlqueue.Queue
	Alerts []*alert.Alert
	API    *api.Server

	intervals map[string]time.Duration // agent name → refresh interval
	schedules map[string]string        // agent name → cron expression
	triggers  map[string][]*alert.Alert
	logger    *slog.Logger
}

// Build compiles every script of cfg and wires the components. Nothing
// touches the database yet.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	adapter, err := NewRegistry(cfg.Database.Strict, logger).Get(cfg.Database.Engine)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Exec:      executor.New(adapter, executor.WithLogger(logger)),
		intervals: make(map[string]time.Duration),
		schedules: make(map[string]string),
		triggers:  make(map[string][]*alert.Alert),
		logger:    logger,
	}

	for _, s := range cfg.Init {
		sc, err := cfg.NewScript(s.Connection, s.Script, s.AllowEmpty)
		if err != nil {
			return nil, err
		}
		app.Init = append(app.Init, sc)
	}

	alerts := make(map[string]*alert.Alert, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		sc, err := cfg.NewScript(a.Connection, a.Script, a.AllowEmpty)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.Name, err)
		}
		al := alert.New(a.Name, app.Exec, sc, alert.WithLogger(logger))
		alerts[a.Name] = al
		app.Alerts = append(app.Alerts, al)
	}

	for _, a := range cfg.Agents {
		if err := app.addAgent(a, alerts); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name, err)
		}
	}

	for _, q := range cfg.Queues {
		if err := app.addQueue(q); err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.Name, err)
		}
	}

	calls := make([]api.Call, 0, len(cfg.API.Calls))
	for _, c := range cfg.API.Calls {
		var opts []script.Option
		if c.ChildName != "" {
			opts = append(opts, script.WithChildName(c.ChildName))
		}
		sc, err := cfg.NewScript(c.Connection, c.Script, c.AllowEmpty, opts...)
		if err != nil {
			return nil, fmt.Errorf("call %s %s: %w", c.Method, c.Path, err)
		}
		calls = append(calls, api.Call{Method: c.Method, Path: c.Path, ResponseType: c.ResponseType, Script: sc})
	}

	app.API, err = api.New(app.Exec, calls,
		api.WithLogger(logger),
		api.WithAgents(app.Agents...),
		api.WithAlerts(app.Alerts...),
		api.WithQueues(app.Queues...),
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (app *App) addAgent(a config.Agent, alerts map[string]*alert.Alert) error {
	cfg := app.Config
	refresh, err := cfg.NewScript(a.Connection, a.Refresh, nil)
	if err != nil {
		return err
	}
	opts := []agent.Option{agent.WithValueFrom(a.ValueFrom), agent.WithLogger(app.logger)}
	if len(a.Properties) > 0 {
		props, err := cfg.NewScript(a.Connection, a.Properties, nil)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithProperties(props))
	}

	interval, err := config.Duration(a.Interval, config.DefaultAgentInterval)
	if err != nil {
		return err
	}

	app.Agents = append(app.Agents, agent.New(a.Name, app.Exec, refresh, opts...))
	app.intervals[a.Name] = interval
	if a.Schedule != "" {
		app.schedules[a.Name] = a.Schedule
	}
	for _, name := range a.Alerts {
		app.triggers[a.Name] = append(app.triggers[a.Name], alerts[name])
	}
	return nil
}

func (app *App) addQueue(q config.Queue) error {
	cfg := app.Config
	var scripts urlqueue.Scripts
	var err error
	if scripts.Insert, err = cfg.NewScript(q.Connection, q.Insert, nil); err != nil {
		return err
	}
	if scripts.Get, err = cfg.NewScript(q.Connection, q.Get, nil); err != nil {
		return err
	}
	if scripts.AfterSend, err = cfg.NewScript(q.Connection, q.AfterSend, nil); err != nil {
		return err
	}
	if len(q.Count) > 0 {
		if scripts.Count, err = cfg.NewScript(q.Connection, q.Count, nil); err != nil {
			return err
		}
	}

	interval, err := config.Duration(q.SendInterval, config.DefaultSendInterval)
	if err != nil {
		return err
	}
	delay, err := config.Duration(q.SendDelay, config.DefaultSendDelay)
	if err != nil {
		return err
	}

	queue, err := urlqueue.New(q.Name, app.Exec, scripts,
		urlqueue.WithSendInterval(interval),
		urlqueue.WithSendDelay(delay),
		urlqueue.WithLogger(app.logger),
	)
	if err != nil {
		return err
	}
	app.Queues = append(app.Queues, queue)
	return nil
}

// RunInit runs the init scripts in order.
func (app *App) RunInit(ctx context.Context) error {
	for i, s := range app.Init {
		if err := app.Exec.Exec(ctx, s, nil, nil); err != nil {
			return fmt.Errorf("init script %d: %w", i, err)
		}
	}
	return nil
}

// Refresh refreshes agent a and fires its alerts when the value changed.
func (app *App) Refresh(ctx context.Context, a *agent.Agent) error {
	changed, err := a.Refresh(ctx)
	if err != nil || !changed {
		return err
	}

	var wg sync.WaitGroup
	for _, al := range app.triggers[a.Name()] {
		wg.Add(1)
		go func(al *alert.Alert) {
			defer wg.Done()
			if _, err := al.Fire(ctx, a); err != nil {
				app.logger.Warn("alert failed", "agent", a.Name(), "alert", al.Name(), "error", err)
			}
		}(al)
	}
	wg.Wait()
	return nil
}

// Serve refreshes every agent once, then runs the scheduler, the queues and
// the HTTP server until ctx is cancelled or one of them fails.
func (app *App) Serve(ctx context.Context, listen string) error {
	sched := schedule.New(app.logger)
	for _, a := range app.Agents {
		if err := app.Refresh(ctx, a); err != nil {
			app.logger.Warn("initial refresh failed", "agent", a.Name(), "error", err)
		}
		job := func(ctx context.Context) error { return app.Refresh(ctx, a) }
		name := "agent/" + a.Name()
		var err error
		if spec, ok := app.schedules[a.Name()]; ok {
			err = sched.Add(name, spec, job)
		} else {
			err = sched.Every(name, app.intervals[a.Name()], job)
		}
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	for _, q := range app.Queues {
		g.Go(func() error { return q.Run(ctx) })
	}
	g.Go(func() error { return app.API.ListenAndServe(ctx, listen) })

	return g.Wait()
}
