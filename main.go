package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multiverse/sim/internal/config"
	"multiverse/sim/internal/events"
	httpapi "multiverse/sim/internal/http"
	"multiverse/sim/internal/input"
	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/replay"
	"multiverse/sim/internal/session"
	"multiverse/sim/internal/simulation"
	"multiverse/sim/internal/state"
	"multiverse/sim/internal/universe"
)

// tickMessage frames a tick diff for viewer consumption.
type tickMessage struct {
	Type string `json:"type"`
	state.TickDiff
}

func encodeTickDiff(diff state.TickDiff) ([]byte, error) {
	return json.Marshal(tickMessage{Type: "tick", TickDiff: diff})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("invalid configuration", logging.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Fatal("failed to initialise logging", logging.Error(err))
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	mode, err := universe.ParseMode(cfg.Mode)
	if err != nil {
		logger.Fatal("invalid universe mode", logging.Error(err))
	}

	//1.- A zero seed derives one from the clock so every run is still reproducible from the log.
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("starting universe host",
		logging.String("mode", string(mode)),
		logging.Field{Key: "seed", Value: seed},
		logging.Field{Key: "tick_hz", Value: cfg.TickHz})

	sim, err := session.New(mode, session.WithLogger(logger), session.WithSeed(seed))
	if err != nil {
		logger.Fatal("failed to initialise session", logging.Error(err))
	}

	gate := input.NewGate(input.Config{MaxAge: cfg.CommandMaxAge, MinInterval: cfg.CommandMinInterval}, logger)
	bridge := NewBridge(cfg, sim, gate, logger)
	if cfg.WSSecret != "" {
		authenticator, err := newHMACViewerAuthenticator(cfg.WSSecret)
		if err != nil {
			logger.Fatal("failed to initialise viewer auth", logging.Error(err))
		}
		WithViewerAuthenticator(authenticator)(bridge)
	}

	stream := events.NewStream(events.Config{})
	monitor := simulation.NewTickMonitor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//2.- Replay recording is optional; the stream subscription acks only after disk writes.
	var recorder *replay.Writer
	if cfg.ReplayDir != "" {
		writer, manifest, err := replay.NewWriter(cfg.ReplayDir, string(mode), seed, cfg.TickHz, nil)
		if err != nil {
			logger.Fatal("failed to open replay bundle", logging.Error(err))
		}
		recorder = writer
		logger.Info("recording replay bundle",
			logging.String("dir", writer.Directory()),
			logging.String("created_at", manifest.CreatedAt))

		sub, err := stream.Subscribe(ctx, "replay", 128)
		if err != nil {
			logger.Fatal("failed to subscribe replay sink", logging.Error(err))
		}
		go func() {
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case envelope, ok := <-sub.Events():
					if !ok {
						return
					}
					if err := recorder.AppendEvent(envelope.Event); err != nil {
						logger.Error("replay event write failed", logging.Error(err))
						continue
					}
					if err := sub.Ack(envelope.Sequence); err != nil {
						logger.Error("replay event ack failed", logging.Error(err))
					}
				}
			}
		}()
	}

	loop := simulation.NewLoop(cfg.TickHz, func(step time.Duration) {
		diff := sim.Step(step.Seconds())
		if !diff.HasChanges() {
			return
		}
		payload, err := encodeTickDiff(diff)
		if err != nil {
			logger.Error("failed to encode tick diff", logging.Error(err))
			return
		}
		bridge.Broadcast(payload)
		for _, event := range diff.Events.Events {
			if _, err := stream.Publish(event); err != nil {
				logger.Error("failed to publish event", logging.Error(err))
			}
		}
		if recorder != nil {
			if err := recorder.AppendFrame(diff.Tick, payload); err != nil {
				logger.Error("replay frame write failed", logging.Error(err))
			}
		}
	}, monitor)
	loop.Start(ctx)

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:    logger,
		Readiness: bridge,
		Stats:     bridge.Stats,
		Session: func() (string, uint64) {
			return string(sim.Mode()), sim.Snapshot().Tick
		},
		Ticks:       monitor.Snapshot,
		CommandGate: gate.Metrics,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, 6, nil),
		Replay: httpapi.ReplayFlusherFunc(func() (string, error) {
			if recorder == nil {
				return "", nil
			}
			if err := recorder.Flush(); err != nil {
				return "", err
			}
			return recorder.Directory(), nil
		}),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.ServeWS)
	handlers.Register(mux)

	server := &http.Server{
		Addr:    cfg.Address,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}

	go func() {
		logger.Info("universe host listening", logging.String("addr", cfg.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			bridge.SetStartupError(err)
			logger.Error("http server failed", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down universe host")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", logging.Error(err))
	}
	loop.Stop()
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error("replay close failed", logging.Error(err))
		}
	}
}
