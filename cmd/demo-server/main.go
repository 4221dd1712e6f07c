package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"scoreboard/api/httpapi"
	"scoreboard/board"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/metrics"
)

var demoScores = []core.ScoreEntry{
	{Player: "alice", Score: 4200},
	{Player: "bob", Score: 3100},
	{Player: "carol", Score: 2750},
	{Player: "dave", Score: 1980},
	{Player: "erin", Score: 990},
}

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	ctx := context.Background()
	m := metrics.NewManager(metrics.WithRuntimeCollectors(false))
	b := board.New(
		board.WithDispatchMode(engine.DispatchSync),
		board.WithMetrics(m),
		board.WithLogger(logger),
	)
	defer b.Close()

	for _, e := range demoScores {
		if _, err := b.Service.SubmitScore(ctx, e.Player, e.Score); err != nil {
			slog.Error("failed to seed score", "player", e.Player, "error", err)
		}
	}

	handler := httpapi.NewMux(b.Service, httpapi.Options{
		AllowCORSOrigin: "*",
		StaticDir:       "./public",
		Metrics:         m,
		MetricsPath:     "/metrics",
		Logger:          logger,
	})

	slog.Info("starting demo server on :8080", "players", len(demoScores))

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
