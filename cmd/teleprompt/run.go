package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/teleprompt/internal/api"
	"github.com/MrWong99/teleprompt/internal/config"
	"github.com/MrWong99/teleprompt/internal/follow"
	"github.com/MrWong99/teleprompt/internal/health"
	"github.com/MrWong99/teleprompt/internal/observe"
	"github.com/MrWong99/teleprompt/internal/overlay"
	"github.com/MrWong99/teleprompt/pkg/audio"
)

const (
	shutdownTimeout = 10 * time.Second
	applyTimeout    = 5 * time.Second
	chunkDuration   = 20 * time.Millisecond
)

type runOptions struct {
	config  string
	script  string
	audio   string
	origins []string
	tui     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow live speech and serve the overlay",
		Long: `run starts the follower with the configured speech recogniser and
serves the control API, the overlay WebSocket, health checks and metrics.

Audio is read as raw signed 16-bit little-endian PCM in the configured
input format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "path to the YAML configuration file")
	f.StringVar(&opts.script, "script", "", "script file to load on start")
	f.StringVar(&opts.audio, "audio", "", `raw PCM audio source, "-" for stdin`)
	f.StringSliceVar(&opts.origins, "origin", nil, "additional allowed overlay origin patterns")
	f.BoolVar(&opts.tui, "tui", false, "draw a progress line on stdout")
	return cmd
}

func run(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	var cfg *config.Config
	if opts.config != "" {
		c, err := config.Load(opts.config)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config file %q not found", opts.config)
			}
			return err
		}
		cfg = c
	} else {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(stderr, levelVar, cfg.Server.LogFormat))

	slog.Info("teleprompt starting",
		"version", version,
		"config", opts.config,
		"listen_addr", cfg.Server.ListenAddr,
		"mode", cfg.Prompter.Mode,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, newHTTPClient())
	provider, closers, err := buildSTT(cfg, reg, metrics)
	if err != nil {
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return fmt.Errorf("unknown stt provider %q: %w", cfg.Providers.STT.Name, err)
		}
		return fmt.Errorf("build stt provider: %w", err)
	}
	defer closeAll(closers)
	if provider == nil && cfg.Prompter.Mode == config.ModeWordTracking {
		slog.Warn("no stt provider configured; the script only moves on explicit jumps")
	}

	detector, vcfg, err := buildVAD(cfg, reg)
	if err != nil {
		return fmt.Errorf("build vad: %w", err)
	}
	followOpts := []follow.Option{follow.WithMetrics(metrics)}
	if detector != nil {
		defer detector.Close()
		followOpts = append(followOpts, follow.WithVAD(detector, vcfg))
	}

	f := follow.New(provider, cfg, followOpts...)
	apply := func(old, new *config.Config) {
		d := config.Diff(old, new)
		for _, field := range d.RestartRequired {
			slog.Warn("config change needs a restart", "field", field)
		}
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if !d.PrompterChanged && !d.AlignmentChanged && !d.RecognitionChanged {
			return
		}
		actx, cancel := context.WithTimeout(ctx, applyTimeout)
		defer cancel()
		if err := f.Apply(actx, new); err != nil {
			slog.Warn("apply config", "err", err)
			return
		}
		slog.Info("config reloaded", "mode", new.Prompter.Mode, "mode_changed", d.ModeChanged)
	}
	if opts.config != "" {
		w, err := config.NewWatcher(opts.config, apply)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.CheckFunc("follower", f.Running, follow.ErrStopped),
		health.CheckFunc("recognition", func() bool {
			return !errors.Is(f.Snapshot().Err, follow.ErrRecognitionUnavailable)
		}, follow.ErrRecognitionUnavailable),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	api.New(f).Register(mux)
	overlay.New(f, overlay.WithOriginPatterns(opts.origins...)).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.Run(gctx) })
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if opts.script != "" {
		g.Go(func() error { return loadScript(gctx, f, opts.script) })
	}
	if opts.audio != "" {
		g.Go(func() error { return pumpAudio(gctx, f, cfg.Audio, opts.audio) })
	}
	if opts.tui {
		g.Go(func() error { return runTUI(gctx, f, stdout) })
	}

	err = g.Wait()
	slog.Info("goodbye")
	return err
}

func loadScript(ctx context.Context, f *follow.Follower, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if err := f.Load(ctx, string(raw)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("load script: %w", err)
	}
	return nil
}

// pumpAudio streams PCM from path into the follower, converted from the
// configured input format to the format handed to the recogniser. Chunks that
// arrive while no pass is listening are dropped.
func pumpAudio(ctx context.Context, f *follow.Follower, cfg config.AudioConfig, path string) error {
	var src *os.File
	if path == "-" {
		src = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open audio: %w", err)
		}
		src = file
	}
	// Closing the source unblocks a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer func() {
		if stop() {
			src.Close()
		}
	}()

	in := audio.Format{SampleRate: cfg.InputSampleRate, Channels: cfg.InputChannels}
	out := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	conv, err := audio.NewConverter(in, out)
	if err != nil {
		return err
	}
	slog.Info("audio source opened", "path", path, "input", in, "output", out)

	err = audio.Pump(ctx, src, in.Bytes(chunkDuration), conv, func(chunk []byte) error {
		if err := f.SendAudio(chunk); err != nil && !errors.Is(err, follow.ErrNotListening) {
			slog.Debug("send audio", "err", err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("audio source ended", "path", path)
	return nil
}
