// Command meter simulates one smart meter per configured city and sends
// their readings to a running edge.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/gridedge/internal/adapters/probe"
	"github.com/okian/gridedge/internal/config"
	"github.com/okian/gridedge/internal/meter"
	"github.com/okian/gridedge/pkg/logger"
)

const sendTimeout = 10 * time.Second

func main() {
	var (
		edgeURL = flag.String("url", "", "Base URL of the edge (overrides edge_url)")
		cities  = flag.String("cities", "", "Comma-separated cities (overrides simulation_cities)")
		spikes  = flag.Float64("spikes", 0.05, "Probability of an injected spike per reading")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Get().Named("meter")

	if *edgeURL != "" {
		cfg.EdgeURL = *edgeURL
	}
	list := cfg.SimulationCities
	if *cities != "" {
		list = strings.Split(*cities, ",")
	}

	sink := meter.NewHTTPSink(cfg.EdgeURL, &http.Client{Timeout: sendTimeout})
	fleet, err := meter.NewFleet(list, sink,
		meter.WithProber(probe.New(cfg.EdgeURL)),
		meter.WithSpikeProbability(*spikes),
		meter.WithLogger(log),
	)
	if err != nil {
		log.Error(ctx, "failed to create fleet", logger.Error(err))
		os.Exit(1)
	}

	log.Info(ctx, "sending readings", logger.String("edge", cfg.EdgeURL), logger.Any("cities", list))
	fleet.Start(ctx)
	<-ctx.Done()
	fleet.Stop()

	s := fleet.Stats()
	log.Info(context.Background(), "meters stopped", logger.Any("sent", s.Sent), logger.Any("failed", s.Failed))
}
