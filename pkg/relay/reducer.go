package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rd-openday18/pubsub/internal/adapters/observability"
	"github.com/rd-openday18/pubsub/internal/adapters/state"
	"github.com/rd-openday18/pubsub/internal/adapters/transport/gcloud"
	"github.com/rd-openday18/pubsub/internal/app/pipeline"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// ReducerOption customizes the dependencies used by ReducerRuntime.
type ReducerOption func(*reducerOverrides)

type reducerOverrides struct {
	subscriber    Subscriber
	store         StateStore
	observability Observability
}

// WithSubscriber replaces the default Pub/Sub subscription with any transport.
func WithSubscriber(sub Subscriber) ReducerOption {
	return func(o *reducerOverrides) {
		o.subscriber = sub
	}
}

// WithStateStore injects a custom state backend.
func WithStateStore(s StateStore) ReducerOption {
	return func(o *reducerOverrides) {
		o.store = s
	}
}

// WithReducerObservability plugs in a custom observability backend.
func WithReducerObservability(obs Observability) ReducerOption {
	return func(o *reducerOverrides) {
		o.observability = obs
	}
}

// ReducerRuntime consumes envelopes from the transport, folds them into
// the latest-value system state, and persists every applied update
// before acknowledging.
type ReducerRuntime struct {
	cfg        *Config
	obs        ports.Observability
	sub        ports.Subscriber
	store      ports.StateStore
	reducer    *pipeline.Reducer
	db         *sql.DB
	metricsSrv *http.Server
}

// NewReducerRuntime bootstraps the subscriber and the configured state
// backend, then loads the persisted snapshot so reduction resumes where
// the previous run stopped.
func NewReducerRuntime(ctx context.Context, cfg *Config, opts ...ReducerOption) (*ReducerRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides reducerOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	r := &ReducerRuntime{cfg: cfg, obs: obs}

	store := overrides.store
	if store == nil {
		var err error
		store, err = r.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	if store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	r.store = store

	sub := overrides.subscriber
	if sub == nil {
		var err error
		sub, err = gcloud.NewSubscriber(ctx, cfg.Transport)
		if err != nil {
			return nil, err
		}
	}
	if sub == nil {
		return nil, fmt.Errorf("subscriber is nil")
	}
	r.sub = sub

	red, err := pipeline.NewReducer(ctx, store, obs)
	if err != nil {
		return nil, err
	}
	r.reducer = red
	return r, nil
}

func (r *ReducerRuntime) openStore(ctx context.Context) (ports.StateStore, error) {
	switch r.cfg.State.Backend {
	case "redis":
		return state.NewRedisStore(ctx, r.cfg.State.Redis)
	case "badger":
		return state.NewBadgerStore(r.cfg.State.Badger.Dir)
	case "file":
		return state.NewFileStore(r.cfg.State.File.Path)
	case "postgres":
		db, err := sql.Open("postgres", r.cfg.State.Postgres.ConnString)
		if err != nil {
			return nil, err
		}
		pg := state.NewPostgresStore(db, r.cfg.State.Postgres.Table)
		if err := pg.Init(ctx); err != nil {
			db.Close()
			return nil, err
		}
		r.db = db
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", r.cfg.State.Backend)
	}
}

// State returns a copy of the current reduced state.
func (r *ReducerRuntime) State() SystemState {
	return r.reducer.State()
}

// Run starts the metrics server and blocks receiving messages until
// ctx is cancelled, then shuts down.
func (r *ReducerRuntime) Run(ctx context.Context) error {
	r.startMetrics()
	err := pipeline.RunReducePipeline(ctx, r.sub, r.reducer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := r.Shutdown(shutdownCtx); err == nil {
		err = serr
	}
	return err
}

// Shutdown closes the subscriber and the state backend.
func (r *ReducerRuntime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *ReducerRuntime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
}
