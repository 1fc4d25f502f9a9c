package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/vessel.report/internal/api"
	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/enrich"
	"github.com/banshee-data/vessel.report/internal/httputil"
	"github.com/banshee-data/vessel.report/internal/metrics"
	"github.com/banshee-data/vessel.report/internal/signalk"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

const shutdownTimeout = 5 * time.Second

// app holds the wired components of the daemon.
type app struct {
	registry *vessel.Registry
	names    *enrich.Scheduler
	tracks   *enrich.Scheduler
	sweeper  *vessel.NameSweeper
	stream   *signalk.Stream
	handler  http.Handler
}

func newApp(cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	clock := timeutil.RealClock{}
	m := metrics.New(reg)
	avail := enrich.NewAvailability(m)

	client, err := signalk.NewClient(cfg.GetServerURL(), httputil.NewStandardClient(cfg.GetRequestTimeout()))
	if err != nil {
		return nil, err
	}

	// The schedulers and the registry refer to each other; the jobs resolve
	// the registry when they run.
	a := &app{}
	a.names = enrich.NewScheduler(enrich.SchedulerConfig{
		Kind:     enrich.KindName,
		Clock:    clock,
		MaxDelay: cfg.GetEnrichmentMaxDelay(),
		Timeout:  cfg.GetRequestTimeout(),
		Metrics:  m,
		Fetch: func(ctx context.Context, id string) error {
			return enrich.NameJob(client, a.registry)(ctx, id)
		},
	})
	a.tracks = enrich.NewScheduler(enrich.SchedulerConfig{
		Kind:     enrich.KindTrack,
		Clock:    clock,
		MaxDelay: cfg.GetEnrichmentMaxDelay(),
		Timeout:  cfg.GetRequestTimeout(),
		Metrics:  m,
		Fetch: func(ctx context.Context, id string) error {
			return enrich.TrackJob(client, a.registry, avail)(ctx, id)
		},
	})
	a.registry = vessel.NewRegistry(vessel.RegistryConfig{
		Clock:           clock,
		Expiry:          cfg.GetExpiry(),
		TrackThrottle:   cfg.GetTrackThrottle(),
		Names:           a.names,
		Tracks:          a.tracks,
		TracksAvailable: avail.Available,
		Metrics:         m,
	})
	a.sweeper = vessel.NewNameSweeper(a.registry, clock, cfg.GetNameSweepInitialDelay(), cfg.GetNameSweepInterval())

	a.stream, err = signalk.NewStream(signalk.StreamConfig{
		ServerURL: cfg.GetServerURL(),
		Sink:      a.registry,
		Clock:     clock,
	})
	if err != nil {
		return nil, err
	}

	server := api.NewServer(api.Options{
		Registry:              a.registry,
		Availability:          avail,
		Stream:                a.stream,
		Gatherer:              gatherer,
		SpeedUnits:            cfg.GetSpeedUnits(),
		ProjectionHorizon:     cfg.GetProjectionHorizon(),
		ProjectionStep:        cfg.GetProjectionStep(),
		SelectionRadiusMeters: cfg.GetSelectionRadiusMeters(),
	})
	mux := server.ServeMux()
	server.AttachAdminRoutes(mux)
	a.handler = api.LoggingMiddleware(mux)
	return a, nil
}

// run serves on ln and runs the background loops until ctx is cancelled or
// one of them fails.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	loops := map[string]func(context.Context) error{
		"stream":          a.stream.Run,
		"name sweeper":    a.sweeper.Run,
		"name scheduler":  a.names.Run,
		"track scheduler": a.tracks.Run,
	}
	for name, loop := range loops {
		g.Go(func() error {
			err := loop(ctx)
			log.Printf("%s routine terminated", name)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Request contexts end with ctx so event streams close on shutdown.
	server := &http.Server{
		Handler:     a.handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			return server.Close()
		}
		return nil
	})

	return g.Wait()
}
