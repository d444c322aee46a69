package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"gala/internal/agents"
	"gala/internal/budget"
	"gala/internal/bus"
	"gala/internal/config"
	"gala/internal/crawler"
	"gala/internal/enrich"
	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/memory"
	"gala/internal/metrics"
	"gala/internal/planner"
	"gala/internal/quality"
	"gala/internal/retrieval"
	"gala/internal/trace"
	"gala/internal/types"
)

// runtime is the fully wired planning process: bus, distributor, one worker
// per category, enrichment engine, pattern store, memory, and trace. Every
// subcommand that needs live planning builds one and closes it on exit.
type runtime struct {
	cfg  *config.Config
	seed int64

	bus      *bus.Bus
	graphs   map[types.Category]*graph.Graph
	patterns *retrieval.Store
	watcher  *retrieval.Watcher
	sessions *memory.SessionStore
	prefs    *memory.PrefsStore
	tracer   *trace.Store
	enricher *enrich.Engine
	dist     *budget.Distributor
	planner  *planner.Planner

	metricsSrv *http.Server
	cancel     context.CancelFunc
}

func qualityThresholds(cfg *config.Config) quality.Thresholds {
	return quality.Thresholds{
		Completeness: cfg.Knowledge.CompletenessThreshold,
		Accuracy:     cfg.Knowledge.AccuracyThreshold,
		MaxAge:       time.Duration(cfg.Knowledge.FreshnessDays) * 24 * time.Hour,
		WeightCmp:    cfg.Knowledge.CompletenessWeight,
		WeightFresh:  cfg.Knowledge.FreshnessWeight,
		WeightAcc:    cfg.Knowledge.AccuracyWeight,
	}
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MemoryDir(), 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runtime{cfg: cfg, seed: seed, cancel: cancel}

	rt.graphs = make(map[types.Category]*graph.Graph, len(types.Categories()))
	for _, cat := range types.Categories() {
		rt.graphs[cat] = graph.Load(cfg.GraphDir(), cat)
	}

	rt.patterns = retrieval.NewStore(cfg.RetrievalDir())
	if cfg.Knowledge.HotReload {
		w, err := retrieval.NewWatcher(rt.patterns)
		if err != nil {
			logger.Warn("pattern hot reload unavailable", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("pattern watcher failed to start", zap.Error(err))
		} else {
			rt.watcher = w
		}
	}

	rt.sessions = memory.NewSessionStore(cfg.MemoryDir())
	rt.prefs = memory.NewPrefsStore(cfg.MemoryDir())

	if cfg.Trace.Enabled {
		ts, err := trace.Open(cfg.TraceDBPath())
		if err != nil {
			logger.Warn("trace store unavailable", zap.Error(err))
		} else {
			rt.tracer = ts
		}
	}

	client := llm.NewClient(cfg.LLM, seed)
	var search llm.SearchClient
	if cfg.Knowledge.SearchFallback {
		search = llm.NewSearchClient(cfg.Search, seed)
	}

	validator := quality.New(qualityThresholds(cfg))
	fetcher := enrich.NewFetcher(cfg.GetFetchTimeout(), cfg.Crawler.UserAgent)
	var recorder enrich.Recorder
	if rt.tracer != nil {
		recorder = rt.tracer
	}
	rt.enricher = enrich.New(validator, fetcher, client, search, recorder, enrich.Options{
		FetchTimeout:   cfg.GetFetchTimeout(),
		LLMTimeout:     cfg.GetLLMTimeout(),
		MinImprovement: cfg.Knowledge.MinImprovement,
		BatchWorkers:   cfg.Knowledge.BatchWorkers,
	})

	rt.bus = bus.New(bus.Config{
		QueueSize:         cfg.Bus.QueueSize,
		ResponseQueueSize: cfg.Bus.ResponseQueueSize,
		EndpointQueueSize: cfg.Bus.EndpointQueueSize,
		DrainTimeout:      cfg.GetDrainTimeout(),
	})
	rt.bus.Start()

	rt.dist = budget.New(cfg.Budget, client, cfg.GetLLMTimeout(), rt.prefs, rt.patterns,
		func(cat types.Category) *graph.Graph { return rt.graphs[cat] }, seed)
	rt.bus.Register(types.EndpointBudget, rt.dist.Handler())

	cr := crawler.New(cfg.Crawler, seed)
	for _, cat := range types.Categories() {
		w := agents.NewWorker(cat, cfg.Workers, rt.graphs[cat], cfg.GraphDir(), cr, rt.enricher, rt.patterns)
		rt.bus.Register(string(cat), w.Handler())
		rt.bus.SetSharedData(cat.GraphName(), rt.graphs[cat])
	}

	var tracer planner.Tracer
	if rt.tracer != nil {
		tracer = rt.tracer
	}
	rt.planner = planner.New(rt.bus, cfg, rt.patterns, rt.sessions, tracer)
	rt.planner.Attach()

	if cfg.Metrics.Enabled {
		rt.metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			if err := rt.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
	}

	logger.Info("runtime ready",
		zap.Int64("seed", seed),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("crawler", cfg.Crawler.Backend))
	return rt, nil
}

// Close tears the process down in dependency order: stop accepting pattern
// reloads, drain the bus, then release the trace database.
func (rt *runtime) Close() {
	rt.cancel()
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.metricsSrv != nil {
		_ = rt.metricsSrv.Close()
	}
	rt.bus.Stop()
	if rt.tracer != nil {
		_ = rt.tracer.Close()
	}
}
