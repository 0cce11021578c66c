// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/fetch"
	"github.com/holomush/scriptkit/internal/lifecycle"
	"github.com/holomush/scriptkit/internal/logging"
	"github.com/holomush/scriptkit/internal/observability"
	"github.com/holomush/scriptkit/internal/page"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/plugin/goplugin"
	"github.com/holomush/scriptkit/internal/stdio"
	"github.com/holomush/scriptkit/internal/xdg"
)

// isolatedEnv marks the page as cross-context isolated when the flag is not
// given.
const isolatedEnv = "SCRIPTKIT_ISOLATED"

// runConfig holds configuration for the run command.
type runConfig struct {
	configFile    string
	isolated      bool
	output        string
	metricsAddr   string
	noCache       bool
	binaryPlugins bool
	timeout       time.Duration
}

// errRunFailed is returned when the page ended in the failed state. The
// reason has already been shown as a banner.
var errRunFailed = errors.New("page run failed")

// NewRunCmd creates the run subcommand.
func NewRunCmd(flags *globalFlags) *cobra.Command {
	return newRunCmd(flags, nil)
}

func newRunCmd(flags *globalFlags, deps *RunDeps) *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run PAGE",
		Short: "Run the Lua fragments of an HTML page",
		Long: `Run parses PAGE ("-" reads stdin), loads its lua-config block, starts the
interpreter and executes every lua and lua-repl fragment in document order.
Script output is written to stdout and stderr; --output writes the page with
everything displayed into it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(cmd.Context(), cmd, flags, cfg, args[0], deps)
		},
	}

	cmd.Flags().StringVar(&cfg.configFile, "config", "", "config file (replaces the page's config attribute)")
	cmd.Flags().BoolVar(&cfg.isolated, "isolated", false, "treat the page as cross-context isolated (allows execution_thread: worker; env "+isolatedEnv+")")
	cmd.Flags().StringVarP(&cfg.output, "output", "o", "", `write the rendered page here ("-" for stdout)`)
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().BoolVar(&cfg.noCache, "no-cache", false, "disable the offline fetch cache")
	cmd.Flags().BoolVar(&cfg.binaryPlugins, "binary-plugins", true, "allow plugin directories with a go-plugin executable")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 0, "abort the run after this long (0 = no limit)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runWithDeps runs a page with injectable dependencies.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cmd *cobra.Command, flags *globalFlags, cfg *runConfig, pagePath string, deps *RunDeps) error {
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.PluginHostFactory == nil {
		deps.PluginHostFactory = func() plugin.Host { return goplugin.NewHost() }
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) (ObservabilityServer, error) {
			return observability.NewServer(addr, ready,
				bridge.RegisterMetrics,
				plugin.RegisterMetrics,
				lifecycle.RegisterMetrics,
			)
		}
	}
	if deps.CacheDirGetter == nil {
		deps.CacheDirGetter = xdg.CacheDir
	}
	if deps.ConfigDirGetter == nil {
		deps.ConfigDirGetter = xdg.ConfigDir
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.Setup(logging.Options{
		Service: "scriptkit",
		Version: version,
		Format:  flags.logFormat,
		Level:   flags.logLevel,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	isolated := cfg.isolated
	if !cmd.Flags().Changed("isolated") {
		if v := deps.Getenv(isolatedEnv); v != "" {
			isolated, err = strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", isolatedEnv, v, err)
			}
		}
	}

	p, baseDir, err := readPage(cmd, pagePath, page.Environment{CrossContextIsolated: isolated})
	if err != nil {
		return err
	}

	fetchOpts := []fetch.Option{fetch.WithBase(baseDir)}
	if !cfg.noCache {
		if dir, err := deps.CacheDirGetter(); err != nil {
			logger.Warn("fetch cache disabled", "error", err)
		} else if err := xdg.EnsureDir(dir); err != nil {
			logger.Warn("fetch cache disabled", "error", err)
		} else {
			fetchOpts = append(fetchOpts, fetch.WithCacheDir(dir))
		}
	}

	opts := []lifecycle.Option{
		lifecycle.WithPlugins(plugin.NewManager(plugin.WithLogger(logger))),
		lifecycle.WithStdio(stdio.NewMultiplexer(stdio.NewWriterListener(cmd.OutOrStdout(), cmd.ErrOrStderr()))),
		lifecycle.WithFetcher(fetch.New(fetchOpts...)),
		lifecycle.WithConfigSource(config.Source{File: cfg.configFile, Flags: cmd.Flags()}),
		lifecycle.WithBaseDir(baseDir),
		lifecycle.WithLogger(logger),
	}
	if cfg.binaryPlugins {
		if dir, err := deps.ConfigDirGetter(); err != nil {
			logger.Warn("plugin search directory unavailable", "error", err)
		} else {
			opts = append(opts, lifecycle.WithPluginDirs(filepath.Join(dir, "plugins")))
		}
		host := deps.PluginHostFactory()
		defer func() {
			if err := host.Close(context.Background()); err != nil {
				logger.Warn("error closing plugin host", "error", err)
			}
		}()
		opts = append(opts, lifecycle.WithPluginHost(host))
	}
	ctrl := lifecycle.New(p, opts...)
	defer func() {
		if err := ctrl.Close(context.Background()); err != nil {
			logger.Warn("error closing interpreter", "error", err)
		}
	}()

	var latest atomic.Pointer[lifecycle.Status]
	statuses, stop := ctrl.Status()
	defer stop()
	go func() {
		for s := range statuses {
			latest.Store(&s)
			logger.Info(s.Message, "phase", s.State.String())
		}
	}()

	if cfg.metricsAddr != "" {
		obsServer, err := deps.ObservabilityServerFactory(cfg.metricsAddr, func() bool {
			return ctrl.State() == lifecycle.StateReady
		})
		if err != nil {
			return fmt.Errorf("failed to create observability server: %w", err)
		}
		obsServer.SetReportFunc(func() observability.Report {
			r := observability.Report{Phase: ctrl.State().String(), Banners: p.Banners()}
			if st := latest.Load(); st != nil {
				r.Message, r.Updated = st.Message, st.At
			}
			if err := ctrl.Failure(); err != nil {
				r.Failure = err.Error()
			}
			return r
		})
		if _, err := obsServer.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.timeout)
		defer cancelTimeout()
	}

	if err := ctrl.Main(ctx); err != nil {
		return fmt.Errorf("page run aborted in %s: %w", ctrl.State(), err)
	}

	for _, b := range p.Banners() {
		fmt.Fprintf(cmd.ErrOrStderr(), "scriptkit: %s\n", b)
	}
	if err := writeOutput(cmd, p, cfg.output); err != nil {
		return err
	}
	if ctrl.State() == lifecycle.StateFailed {
		return errRunFailed
	}
	return nil
}

// readPage parses the page and returns the directory relative references
// resolve against.
func readPage(cmd *cobra.Command, pagePath string, env page.Environment) (*page.Page, string, error) {
	var r io.Reader
	baseDir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get working directory: %w", err)
	}

	if pagePath == "-" {
		r = cmd.InOrStdin()
	} else {
		abs, err := filepath.Abs(pagePath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve %s: %w", pagePath, err)
		}
		f, err := os.Open(abs) //nolint:gosec // the page path is the command's argument
		if err != nil {
			return nil, "", fmt.Errorf("failed to open page: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
		baseDir = filepath.Dir(abs)
	}

	p, err := page.Parse(r, page.WithEnvironment(env))
	if err != nil {
		return nil, "", err
	}
	return p, baseDir, nil
}

func writeOutput(cmd *cobra.Command, p *page.Page, output string) error {
	switch output {
	case "":
		return nil
	case "-":
		return p.Render(cmd.OutOrStdout())
	}

	f, err := os.Create(output) //nolint:gosec // the output path is the command's flag
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := p.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
