package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/josephlewis42/pipeshell/commands"
	"github.com/josephlewis42/pipeshell/core/config"
	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/shell"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// runtime is everything a shell session needs, built from the configuration.
type runtime struct {
	Config  *config.Configuration
	Log     *log.Logger
	Host    *plugin.Host
	Engine  *engine.Engine
	Session *shell.Session

	eventLog io.Closer
	reaper   *cron.Cron
}

func loadConfig(l *log.Logger) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		l.Warn("Couldn't load config, using defaults: did you run init?", "path", cfgPath)
		mem := afero.NewMemMapFs()
		if err := config.InitializeFs(mem, l); err != nil {
			return nil, err
		}
		configuration, err = config.LoadFs(mem)
		if err == nil {
			configuration.HistoryFile = ""
		}
	}

	return configuration, err
}

func newCLILogger(cmd *cobra.Command) *log.Logger {
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "pipeshell", Level: log.WarnLevel})
}

// newRuntime starts a session writing to the command's output streams.
func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	l := newCLILogger(cmd)

	configuration, err := loadConfig(l)
	if err != nil {
		return nil, err
	}
	l.SetLevel(configuration.Level())

	eventLog, err := configuration.OpenEventLog()
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	events := logger.NewJSONLinesLogRecorder(eventLog).NewSession()
	events.Record(logger.EventSessionStart, logger.Fields{"pid": os.Getpid()})

	host := plugin.NewHost(plugin.Options{
		Log:              l,
		Events:           events,
		HandshakeTimeout: configuration.HandshakeTimeout(),
		IdleTimeout:      configuration.IdleTimeout(),
	})

	e := engine.New(engine.Options{
		Stdout:        cmd.OutOrStdout(),
		Stderr:        cmd.ErrOrStderr(),
		Plugins:       host,
		Events:        events,
		Log:           l,
		PathCacheSize: configuration.PathCacheSize,
	})
	commands.Install(e)

	rt := &runtime{
		Config:   configuration,
		Log:      l,
		Host:     host,
		Engine:   e,
		Session:  shell.NewSession(e, colorMode(configuration.Color)),
		eventLog: eventLog,
		reaper:   cron.New(),
	}

	for _, p := range configuration.Plugins {
		id := plugin.NewIdentity(p.Path, p.Args...)
		if _, err := e.AddPlugin(ctx, id); err != nil {
			l.Error("couldn't load plugin", "plugin", p.Name, "path", p.Path, "err", err)
		}
	}

	if _, err := rt.reaper.AddFunc(configuration.PluginReapSchedule, func() {
		if n := host.ReapIdle(time.Now()); n > 0 {
			l.Debug("stopped idle plugins", "count", n)
		}
	}); err != nil {
		rt.Close()
		return nil, fmt.Errorf("plugin_reap_schedule: %w", err)
	}
	rt.reaper.Start()

	return rt, nil
}

// Close stops plugins and flushes the event log.
func (rt *runtime) Close() error {
	<-rt.reaper.Stop().Done()
	err := rt.Host.Close()
	if cerr := rt.eventLog.Close(); err == nil {
		err = cerr
	}
	return err
}

func colorMode(c string) string {
	switch c {
	case shell.ColorAlways, shell.ColorNever:
		return c
	default:
		return shell.ColorAuto
	}
}
