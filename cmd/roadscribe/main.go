// Command roadscribe is a voice-driven road-test issue logger: speak while
// driving, and recognized issues are classified and appended to the session
// log.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/autonomi-lab/roadscribe/internal/app"
	"github.com/autonomi-lab/roadscribe/internal/config"
	"github.com/autonomi-lab/roadscribe/internal/observe"
	"github.com/autonomi-lab/roadscribe/internal/store"
	"github.com/autonomi-lab/roadscribe/pkg/asr/aliyun"
	"github.com/autonomi-lab/roadscribe/pkg/audio/capture"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "roadscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "roadscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("roadscribe starting",
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(observe.ProviderConfig{ServiceName: "roadscribe"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Components ────────────────────────────────────────────────────────────
	recognizer, err := aliyun.New(aliyun.Credentials{
		AccessKeyID:     cfg.Recognizer.AccessKeyID,
		AccessKeySecret: cfg.Recognizer.AccessKeySecret,
		AppKey:          cfg.Recognizer.AppKey,
	})
	if err != nil {
		slog.Error("failed to create recognizer", "err", err)
		return 1
	}

	source, err := capture.NewExecSource(cfg.Capture.Command)
	if err != nil {
		slog.Error("failed to create capture source", "err", err)
		return 1
	}

	var persister store.Persister
	if cfg.Storage.Path != "" {
		sqlite, err := store.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			slog.Error("failed to open storage", "err", err)
			return 1
		}
		defer sqlite.Close()
		persister = sqlite
	}

	recordStore, err := store.New(persister)
	if err != nil {
		slog.Error("failed to load store", "err", err)
		return 1
	}

	term := &terminalUI{}
	application := app.New(cfg, app.Deps{
		Recognizer: recognizer,
		Source:     source,
		Store:      recordStore,
		Display:    term,
		Notifier:   term,
		Metrics:    metrics,
	})

	// ── Interactive command loop ──────────────────────────────────────────────
	go commandLoop(ctx, stop, application)

	fmt.Println("roadscribe ready — commands: start, pause, stop, undo, status, quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// commandLoop reads commands from stdin until ctx is cancelled or the tester
// quits.
func commandLoop(ctx context.Context, quit context.CancelFunc, application *app.App) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "start":
			if err := application.Controller().StartTest(ctx); err != nil {
				fmt.Println("start failed:", err)
			}
		case "pause":
			_ = application.Controller().PauseTest(ctx)
		case "stop":
			_ = application.Controller().StopTest(ctx)
		case "undo":
			application.UndoLast()
		case "status":
			printStatus(application)
		case "quit", "exit":
			quit()
			return
		case "":
		default:
			fmt.Println("commands: start, pause, stop, undo, status, quit")
		}
	}
}

// printStatus summarises the controller state, the open session, and history.
func printStatus(application *app.App) {
	fmt.Println("state:", application.Controller().State())
	if sess, ok := application.Store().CurrentSession(); ok {
		fmt.Printf("current session: %s (%s)\n", sess.Name, sess.ID)
		for typ, n := range application.Store().CountByType() {
			fmt.Printf("  %s: %d\n", typ.Label(), n)
		}
	}
	for _, sess := range application.Store().Sessions() {
		fmt.Printf("history: %s — %d records\n", sess.Name, sess.RecordCount)
	}
}

// terminalUI is the thin stand-in for the excluded UI layer: transcripts and
// notices go straight to stdout.
type terminalUI struct{}

func (t *terminalUI) ShowPartial(text string) {
	if text != "" {
		fmt.Printf("\r… %s", text)
	}
}

func (t *terminalUI) ShowFinal(text string) {
	fmt.Printf("\r» %s\n", text)
}

func (t *terminalUI) Elapsed(d time.Duration) {
	fmt.Printf("\r[%s] ", d)
}

func (t *terminalUI) Notify(text string) {
	fmt.Println("\r•", text)
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
