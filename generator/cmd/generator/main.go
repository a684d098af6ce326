package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gateload/gateload/generator/internal/synth"
)

func main() {
	out := flag.String("out", "data/flight_data.csv", "CSV file to append passages to (CSV_PATH overrides)")
	interval := flag.Duration("interval", 0, "fixed wait between steps; 0 uses the bursty 1-20s cadence")
	checkpoints := flag.String("checkpoints", "CP1", "comma-separated checkpoint ids rows are spread over")
	rate := flag.Float64("rate", 0, "emit probability per step in (0,1]; 0 follows the time-of-day profile")
	seed := flag.Int64("seed", 0, "random seed; 0 seeds from the clock")
	verbose := flag.Bool("v", false, "log quiet steps")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	path := *out
	if p := os.Getenv("CSV_PATH"); p != "" {
		path = p
	}
	if *rate < 0 || *rate > 1 {
		slog.Error("rate must be within [0, 1]", "rate", *rate)
		os.Exit(2)
	}

	var cps []string
	for _, cp := range strings.Split(*checkpoints, ",") {
		if cp = strings.TrimSpace(cp); cp != "" {
			cps = append(cps, cp)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g := synth.New(synth.Options{
		Checkpoints: cps,
		Probability: *rate,
		Interval:    *interval,
		Seed:        *seed,
	})
	synth.Run(ctx, g, synth.NewAppender(path))
}
