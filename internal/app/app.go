// Package app wires the RoadScribe components together: recognizer transport,
// capture pipeline, classifier, store, and recorder controller. The external
// UI layer talks to the App through the Display/Notifier interfaces and the
// Controller.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autonomi-lab/roadscribe/internal/classify"
	"github.com/autonomi-lab/roadscribe/internal/config"
	"github.com/autonomi-lab/roadscribe/internal/observe"
	"github.com/autonomi-lab/roadscribe/internal/recorder"
	"github.com/autonomi-lab/roadscribe/internal/store"
	"github.com/autonomi-lab/roadscribe/pkg/asr"
	"github.com/autonomi-lab/roadscribe/pkg/audio/capture"
)

// Display receives live text for the tester: intermediate transcripts,
// finalized transcripts, and the 1 Hz elapsed-time tick. Implemented by the
// external UI layer.
type Display interface {
	ShowPartial(text string)
	ShowFinal(text string)
	Elapsed(d time.Duration)
}

// Notifier surfaces user-visible status messages (help answers, prompts,
// error conditions). Implemented by the external UI layer.
type Notifier interface {
	Notify(text string)
}

// Deps are the injected dependencies for [New].
type Deps struct {
	Recognizer asr.Recognizer
	Source     capture.Source
	Store      *store.Store
	Display    Display
	Notifier   Notifier
	Metrics    *observe.Metrics
}

// App owns the live component graph for one process.
type App struct {
	cfg        *config.Config
	store      *store.Store
	classifier *classify.Classifier
	display    Display
	notifier   Notifier
	metrics    *observe.Metrics

	transcriber *Transcriber
	pipeline    *capture.Pipeline
	controller  *recorder.Controller
}

// New builds the component graph. The returned App is idle until Run.
func New(cfg *config.Config, deps Deps) *App {
	a := &App{
		cfg:        cfg,
		store:      deps.Store,
		classifier: classify.New(),
		display:    deps.Display,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
	}

	streamCfg := asr.StreamConfig{
		SampleRate: cfg.Recognizer.SampleRate,
		Channels:   cfg.Recognizer.Channels,
	}
	a.transcriber = NewTranscriber(deps.Recognizer, streamCfg, a.handleEvent)
	a.pipeline = capture.NewPipeline(deps.Source, a.transcriber,
		capture.WithSourceRate(cfg.Capture.SampleRate))
	sessions := meteredSessions{store: a.store, metrics: a.metrics}
	a.controller = recorder.New(a.transcriber, a.pipeline, sessions, deps.Display)

	return a
}

// meteredSessions wraps the store's session lifecycle with the
// active-session gauge.
type meteredSessions struct {
	store   *store.Store
	metrics *observe.Metrics
}

func (m meteredSessions) OpenSession() (store.TestSession, error) {
	sess, err := m.store.OpenSession()
	if err == nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return sess, err
}

func (m meteredSessions) CloseSession() (store.TestSession, bool) {
	sess, ok := m.store.CloseSession()
	if ok {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	return sess, ok
}

// Controller returns the recorder controller for the UI layer.
func (a *App) Controller() *recorder.Controller { return a.controller }

// Store returns the record store for the UI layer.
func (a *App) Store() *store.Store { return a.store }

// UndoLast removes the most recently logged record and reports the result to
// the tester.
func (a *App) UndoLast() {
	if rec, ok := a.store.UndoLast(); ok {
		a.notifier.Notify("已删除：" + rec.Type.Label() + " - " + rec.SubType)
	} else {
		a.notifier.Notify("没有可删除的记录")
	}
}

// Run serves background concerns (the metrics endpoint) until ctx is
// cancelled, then tears the session down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return observe.ServeMetrics(gctx, addr)
		})
	}

	// Sample the pipeline's dropped-block tally into the counter.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				now := a.pipeline.DroppedBlocks()
				if delta := now - last; delta > 0 {
					a.metrics.DroppedBlocks.Add(gctx, delta)
				}
				last = now
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		_ = a.controller.StopTest(context.Background())
		_ = a.transcriber.Close()
		return gctx.Err()
	})

	return g.Wait()
}

// handleEvent is the single consumer of transport events. It runs on the
// transcriber's consume goroutine, so classification and store mutation for
// one finalized transcript complete before the next event is processed.
func (a *App) handleEvent(ev asr.Event) {
	ctx := context.Background()

	switch ev.Kind {
	case asr.EventSessionStarted:
		a.notifier.Notify("识别服务已就绪")

	case asr.EventPartial:
		a.display.ShowPartial(ev.Transcript.Text)

	case asr.EventFinal:
		a.metrics.Transcripts.Add(ctx, 1)
		a.display.ShowFinal(ev.Transcript.Text)
		a.classifyAndLog(ctx, ev.Transcript.Text)

	case asr.EventCompleted:
		a.notifier.Notify("本次识别任务已结束")

	case asr.EventServiceFault:
		a.metrics.ServiceFaults.Add(ctx, 1)
		a.notifier.Notify("识别服务异常：" + ev.Err.Error())

	case asr.EventReconnecting:
		a.metrics.Reconnects.Add(ctx, 1)
		a.notifier.Notify(fmt.Sprintf("连接中断，正在尝试第 %d 次重连", ev.Attempt))

	case asr.EventClosed:
		if ev.Err != nil {
			if asr.IsKind(ev.Err, asr.KindConfiguration) {
				a.notifier.Notify("凭证无效，请检查配置后重试")
			} else {
				a.notifier.Notify("连接已断开且重连失败，请停止后重新开始测试")
			}
			// The session is gone; stop capture so blocks aren't converted
			// for a sink that can never become ready.
			_ = a.controller.StopTest(context.Background())
		}
	}
}

// classifyAndLog maps one finalized transcript to records and applies them.
func (a *App) classifyAndLog(ctx context.Context, text string) {
	start := time.Now()
	outcome := a.classifier.Classify(text)
	a.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case outcome.Action == classify.ActionDeleteLast:
		a.UndoLast()

	case len(outcome.Matches) > 0:
		for _, m := range outcome.Matches {
			if rec, ok := a.store.Add(m, text); ok {
				a.metrics.RecordAdded(ctx, string(rec.Type))
				a.notifier.Notify("已记录：" + rec.Type.Label() + " - " + rec.SubType)
			}
		}

	case outcome.Notice != "":
		a.notifier.Notify(outcome.Notice)
	}
}
