// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lifecycle sequences a page run: config, plugin hooks, interpreter
// startup, environment setup and script execution.
//
// A Controller is single use. Run drives it from Init to Ready or Failed;
// Main does the same and turns user errors into page banners.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/page"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/stdio"
	"github.com/holomush/scriptkit/internal/usererr"
	"github.com/holomush/scriptkit/pkg/errutil"
)

var tracer = otel.Tracer("scriptkit/lifecycle")

// StartFunc starts an interpreter session.
type StartFunc func(ctx context.Context, mode interpreter.Mode, opts ...interpreter.RemoteOption) (*interpreter.Session, error)

// Option configures a Controller.
type Option func(*Controller)

// WithPlugins sets the plugin manager. Plugins registered before Run see
// every hook.
func WithPlugins(m *plugin.Manager) Option {
	return func(c *Controller) { c.plugins = m }
}

// WithStdio sets the multiplexer interpreter output is written to.
func WithStdio(m *stdio.Multiplexer) Option {
	return func(c *Controller) { c.stdio = m }
}

// WithFetcher sets how script sources, packages and fetched files are
// retrieved.
func WithFetcher(f interpreter.Fetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

// WithConfigSource sets config sources that sit alongside the page's own
// config block. A file here replaces the block's config attribute; flags
// override everything.
func WithConfigSource(src config.Source) Option {
	return func(c *Controller) { c.source = src }
}

// WithBaseDir sets the directory relative config files are resolved
// against.
func WithBaseDir(dir string) Option {
	return func(c *Controller) { c.baseDir = dir }
}

// WithPluginHost enables out-of-process plugins.
func WithPluginHost(h plugin.Host) Option {
	return func(c *Controller) { c.pluginHost = h }
}

// WithPluginFS sets the filesystem plugin directories are read from.
func WithPluginFS(fs afero.Fs) Option {
	return func(c *Controller) { c.pluginFS = fs }
}

// WithPluginDirs sets the directories bare plugin names are looked up in.
func WithPluginDirs(dirs ...string) Option {
	return func(c *Controller) { c.pluginDirs = append(c.pluginDirs, dirs...) }
}

// WithRemoteOptions adds options for the interpreter Remote.
func WithRemoteOptions(opts ...interpreter.RemoteOption) Option {
	return func(c *Controller) { c.remoteOpts = append(c.remoteOpts, opts...) }
}

// WithStart replaces how the interpreter session is started.
func WithStart(fn StartFunc) Option {
	return func(c *Controller) { c.start = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller runs one page.
type Controller struct {
	page       *page.Page
	plugins    *plugin.Manager
	stdio      *stdio.Multiplexer
	fetcher    interpreter.Fetcher
	source     config.Source
	baseDir    string
	pluginHost plugin.Host
	pluginFS   afero.Fs
	pluginDirs []string
	remoteOpts []interpreter.RemoteOption
	start      StartFunc
	logger     *slog.Logger

	counter *PendingCounter
	lock    *ExecLock
	status  broadcaster

	mu      sync.Mutex
	machine machine
	cfg     config.AppConfig
	session *interpreter.Session
	ran     bool
}

// New creates a controller for p.
func New(p *page.Page, opts ...Option) *Controller {
	c := &Controller{
		page:    p,
		counter: NewPendingCounter(),
		lock:    NewExecLock(),
		start:   interpreter.Start,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.plugins == nil {
		c.plugins = plugin.NewManager()
	}
	if c.stdio == nil {
		c.stdio = stdio.NewMultiplexer()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.state
}

// Failure returns why the run failed, or nil.
func (c *Controller) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.reason
}

// Config returns the loaded config. It is the zero value before
// ConfigLoaded.
func (c *Controller) Config() config.AppConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Session returns the interpreter session, or nil before it was started.
func (c *Controller) Session() *interpreter.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Status subscribes to progress messages. The returned func ends the
// subscription.
func (c *Controller) Status() (<-chan Status, func()) {
	ch := c.status.subscribe()
	return ch, func() { c.status.unsubscribe(ch) }
}

// Main runs the page. A user error is reported to plugins and shown as a
// banner, leaving the page usable; any other error is returned.
func (c *Controller) Main(ctx context.Context) error {
	err := c.Run(ctx)
	if err == nil {
		return nil
	}
	if info, ok := usererr.Extract(err); ok {
		c.reportUserError(ctx, info)
		return nil
	}
	return err
}

// Run drives the controller from Init to Ready. On error the controller is
// left in Failed and the error is returned unchanged.
func (c *Controller) Run(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return errors.New("lifecycle: controller already ran")
	}
	c.ran = true
	c.mu.Unlock()

	defer func() {
		if err != nil {
			c.fail(err)
		}
	}()

	for _, id := range c.page.Terminals() {
		c.stdio.Add(&page.TargetListener{Page: c.page, ID: id})
	}

	steps := []struct {
		phase State
		fn    func(context.Context) error
	}{
		{StateConfigLoaded, c.loadConfig},
		{StatePluginsConfigured, c.configurePlugins},
		{StateInterpreterReady, c.loadInterpreter},
		{StateVenvSetup, c.setupVenv},
		{StateUserPluginsFetched, c.fetchUserPlugins},
		{StateScriptsExecuting, c.executeScripts},
	}
	for _, step := range steps {
		if err := c.phase(ctx, step.phase, step.fn); err != nil {
			return err
		}
	}

	if err := c.enter(StateReady); err != nil {
		return err
	}
	c.plugins.AfterStartup(ctx, plugin.ConfigOptions{Config: c.Config()})
	return nil
}

// phase runs fn inside a span and records how long it took.
func (c *Controller) phase(ctx context.Context, st State, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "lifecycle."+st.String(),
		trace.WithAttributes(attribute.String("lifecycle.phase", st.String())),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	PhaseDuration.WithLabelValues(st.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("lifecycle.user_error", usererr.Is(err)))
	}
	return err
}

func (c *Controller) enter(next State) error {
	c.mu.Lock()
	err := c.machine.enter(next)
	name := c.cfg.Name
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.logger.Debug("lifecycle state entered", "phase", next.String())
	c.status.broadcast(Status{State: next, Message: statusMessage(next, name), At: time.Now()})
	return nil
}

func (c *Controller) fail(reason error) {
	c.mu.Lock()
	prev := c.machine.state
	failed := c.machine.fail(reason)
	c.mu.Unlock()
	if !failed {
		return
	}

	RunFailures.WithLabelValues(prev.String(), strconv.FormatBool(usererr.Is(reason))).Inc()
	if usererr.Is(reason) {
		c.logger.Warn("page run failed", "phase", prev.String(), "error", reason)
	} else {
		errutil.LogErrorContext(context.Background(), c.logger, "page run failed", reason, "phase", prev.String())
	}
	c.status.broadcast(Status{State: StateFailed, Message: reason.Error(), At: time.Now()})
}

// reportUserError fires on_user_error and then shows the banner.
func (c *Controller) reportUserError(ctx context.Context, info usererr.Info) {
	c.plugins.OnUserError(ctx, plugin.UserErrorOptions{
		Code:        info.Code,
		Message:     info.Message,
		MessageType: string(info.MessageType),
	})
	if err := c.page.ShowBanner(info); err != nil {
		c.logger.Error("show banner failed", "code", info.Code, "error", err)
	}
}

func (c *Controller) loadConfig(_ context.Context) error {
	file, inline := c.page.Config()
	src := c.source
	if src.File == "" && file != "" {
		src.File = file
		if c.baseDir != "" && !filepath.IsAbs(file) {
			src.File = filepath.Join(c.baseDir, file)
		}
	}
	src.Inline = inline

	cfg, err := config.Load(src)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.logger.Info("config loaded", "config", cfg.String())
	return c.enter(StateConfigLoaded)
}

func (c *Controller) configurePlugins(ctx context.Context) error {
	opts := plugin.ConfigOptions{Config: c.Config()}
	if err := c.plugins.Configure(ctx, opts); err != nil {
		return err
	}
	c.plugins.BeforeLaunch(ctx, opts)
	return c.enter(StatePluginsConfigured)
}

func (c *Controller) loadInterpreter(ctx context.Context) error {
	cfg := c.Config()
	mode := interpreter.ModeMain
	if cfg.Worker() {
		if !c.page.Environment().CrossContextIsolated {
			return usererr.BadConfig(
				"execution_thread %q needs a cross-context isolated page; run with --isolated or use %q",
				config.ThreadWorker, config.ThreadMain)
		}
		mode = interpreter.ModeWorker
	}

	if err := c.enter(StateInterpreterLoading); err != nil {
		return err
	}

	opts := make([]interpreter.RemoteOption, 0, len(c.remoteOpts)+1)
	if c.fetcher != nil {
		opts = append(opts, interpreter.WithFetcher(c.fetcher))
	}
	opts = append(opts, c.remoteOpts...)

	s, err := c.start(ctx, mode, opts...)
	if err != nil {
		return usererr.InterpreterLoadError(err)
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	out := &interpreter.StdioOutput{Stdio: c.stdio, DisplayFunc: c.page.Append}
	err = s.Load(ctx, interpreter.LoadConfig{
		IndexURL:     cfg.IndexURL,
		Bootstrap:    cfg.Interpreter,
		Capabilities: cfg.Capabilities,
	}, out)
	if err != nil {
		if usererr.Is(err) {
			return err
		}
		return usererr.InterpreterLoadError(err)
	}

	if err := c.enter(StateInterpreterReady); err != nil {
		return err
	}
	return c.plugins.AfterSetup(ctx, plugin.SetupOptions{Config: cfg, Interpreter: s.Client})
}

func (c *Controller) fetchUserPlugins(ctx context.Context) error {
	opts := []plugin.LoaderOption{}
	if c.pluginHost != nil {
		opts = append(opts, plugin.WithHost(c.pluginHost))
	}
	if c.pluginFS != nil {
		opts = append(opts, plugin.WithFS(c.pluginFS))
	}
	if len(c.pluginDirs) > 0 {
		opts = append(opts, plugin.WithSearchDirs(c.pluginDirs...))
	}
	loader := plugin.NewLoader(c.Session(), opts...)

	for _, ref := range c.Config().Plugins {
		p, err := loader.Load(ctx, ref)
		if err != nil {
			return err
		}
		if err := c.plugins.Register(p); err != nil {
			return fmt.Errorf("register plugin %s: %w", ref, err)
		}
		c.logger.Info("user plugin loaded", "plugin", p.Name(), "ref", ref)
	}
	return c.enter(StateUserPluginsFetched)
}

// Close tears down the interpreter and ends status subscriptions.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	c.status.closeAll()
	if s == nil {
		return nil
	}
	return s.Close(ctx)
}

func statusMessage(st State, name string) string {
	if name == "" {
		name = "page"
	}
	switch st {
	case StateConfigLoaded:
		return fmt.Sprintf("Loaded config for %s", name)
	case StatePluginsConfigured:
		return "Configured plugins"
	case StateInterpreterLoading:
		return "Loading interpreter..."
	case StateInterpreterReady:
		return "Interpreter ready"
	case StateVenvSetup:
		return "Setting up environment..."
	case StateUserPluginsFetched:
		return "Loaded user plugins"
	case StateScriptsExecuting:
		return "Running scripts..."
	case StateReady:
		return fmt.Sprintf("%s is ready", name)
	default:
		return st.String()
	}
}
