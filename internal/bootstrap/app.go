package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/cache"
	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/repository/memory"
	"github.com/Domenick1991/flightbooking/internal/service/allocation"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/Domenick1991/flightbooking/internal/service/flights"
	"github.com/Domenick1991/flightbooking/internal/service/holds"
	"github.com/Domenick1991/flightbooking/internal/service/outbox"
	"github.com/Domenick1991/flightbooking/internal/service/tickets"
)

// Storage is an opened store together with its catalog reader.
type Storage struct {
	Store   repository.Store
	Flights repository.FlightRepository
	Ping    func(ctx context.Context) error
	Close   func()
}

// OpenStorage connects to PostgreSQL, or builds a seeded memory store when
// store.driver is "memory".
func OpenStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Storage, error) {
	switch cfg.Store.Driver {
	case "memory":
		st := memory.New()
		for _, s := range cfg.Store.Seed {
			f := st.AddFlight(domain.Flight{
				FlightNo:      s.FlightNo,
				FromAirport:   s.From,
				ToAirport:     s.To,
				DepartureTime: s.DepartureTime,
				ArrivalTime:   s.ArrivalTime,
				PriceCents:    s.PriceCents,
			}, s.Seats)
			log.Info("seeded flight", zap.Int64("flight_id", f.ID), zap.String("flight_no", f.FlightNo), zap.Int("seats", len(s.Seats)))
		}
		return &Storage{
			Store:   st,
			Flights: st.Flights(),
			Ping:    func(context.Context) error { return nil },
			Close:   func() {},
		}, nil

	case "postgres":
		pool, err := repository.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := repository.NewPGStore(pool)
		return &Storage{
			Store:   st,
			Flights: repository.NewFlightRepository(pool),
			Ping:    st.Ping,
			Close:   pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// App is the set of services shared by the API server and the worker.
type App struct {
	Storage  *Storage
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Writer   *outbox.Writer
	Flights  *flights.FlightService
	Holds    *holds.Ledger
	Reaper   *holds.Reaper
	Bookings *booking.Orchestrator
	Log      *zap.Logger
}

// NewApp wires the services over storage. flightCache may be nil.
func NewApp(cfg *config.Config, storage *Storage, flightCache *cache.RedisCache, log *zap.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var fc flights.FlightCache
	if flightCache != nil {
		fc = flightCache
	}
	flightSvc := flights.NewFlightService(storage.Flights, fc, flights.WithLogger(log))

	writer := outbox.NewWriter(outbox.WithMaxRetries(cfg.Worker.OutboxMaxRetries))
	holdLedger := holds.NewLedger(storage.Store, writer, log, holds.WithTTL(cfg.Booking.HoldTTL()))

	orch := booking.NewOrchestrator(
		storage.Store,
		flightSvc,
		allocation.NewAllocator(allocation.WithMetrics(m)),
		holdLedger,
		tickets.NewLedger(storage.Store),
		writer,
		booking.WithLogger(log),
		booking.WithMetrics(m),
	)

	return &App{
		Storage:  storage,
		Registry: reg,
		Metrics:  m,
		Writer:   writer,
		Flights:  flightSvc,
		Holds:    holdLedger,
		Reaper:   holds.NewReaper(holdLedger, m, cfg.Worker.ReaperInterval()),
		Bookings: orch,
		Log:      log,
	}
}

// NewDispatcher builds the outbox relay publishing through publisher.
func (a *App) NewDispatcher(cfg config.WorkerConfig, publisher outbox.Publisher) *outbox.Dispatcher {
	return outbox.NewDispatcher(a.Storage.Store, publisher, a.Log,
		outbox.WithBatchSize(cfg.DispatchBatchSize),
		outbox.WithInterval(cfg.DispatchInterval()),
		outbox.WithMetrics(a.Metrics),
	)
}
