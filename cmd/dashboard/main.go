package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/alert"
	"github.com/jabez4jc/openalgo-gsheets/internal/api"
	"github.com/jabez4jc/openalgo-gsheets/internal/config"
	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/ingest"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/push/dingtalk"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"
	"github.com/jabez4jc/openalgo-gsheets/internal/sheet"

	"github.com/cloudwego/hertz/pkg/app/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Printf("🔁 OpenAlgo dashboard is running.")

	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		log.Fatalf("sink error: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("sink close error: %v", err)
		}
	}()

	var notifier alert.Notifier
	if cfg.Push.Dingtalk.Webhook != "" {
		notifier = dingtalk.NewClient(
			cfg.Push.Dingtalk.Webhook,
			cfg.Push.Dingtalk.Secret,
			time.Duration(cfg.Push.Dingtalk.TimeoutMs)*time.Millisecond,
		)
	}
	alertSvc := alert.NewService(notifier, alert.Config{
		DedupWindow: time.Duration(cfg.Alert.DedupWindowSec) * time.Second,
		PerMinute:   cfg.Alert.RatePerMinute,
		Burst:       cfg.Alert.RateBurst,
		RecentKeep:  cfg.Alert.RecentKeep,
	})

	state := engine.NewStateStore()
	table := registry.New()
	streamMode := cfg.Ingest.Mode == config.ModeStream
	eng := engine.New(table, state, sink, alertSvc, streamMode)

	var runner interface {
		Run(ctx context.Context) error
		LatestQuotes() map[string]market.Quote
	}

	if streamMode {
		loadStreamListings(ctx, cfg, sink, table)
		stream := market.NewWSStream(cfg.OpenAlgo.WSURL, cfg.OpenAlgo.APIKey)
		runner = ingest.NewStreamConsumer(stream, table, eng)
	} else {
		rows, err := sink.ReadAllRows(ctx, cfg.Sheet.Name)
		if err != nil {
			log.Fatalf("unable to load sheet %q: %v", cfg.Sheet.Name, err)
		}
		if err := eng.EnsureHeader(ctx, cfg.Sheet.Name, rows); err != nil {
			log.Fatalf("header error: %v", err)
		}
		table.AddListing(cfg.Sheet.Name, rows, "")
		provider := market.NewOpenAlgoClient(
			cfg.OpenAlgo.Host,
			cfg.OpenAlgo.APIKey,
			time.Duration(cfg.OpenAlgo.TimeoutMs)*time.Millisecond,
		)
		runner = ingest.NewPoller(provider, table, eng, time.Duration(cfg.Ingest.PollIntervalSec)*time.Second)
	}
	log.Printf("tracking %d instruments (%s mode)", table.Len(), cfg.Ingest.Mode)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	api.RegisterRoutes(h, table, state, alertSvc, runner)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})
	g.Go(func() error {
		log.Printf("status api on %s", addr)
		return h.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("exit: %v", err)
	}
}

func openSink(ctx context.Context, cfg *config.Config) (sheet.Sink, error) {
	switch cfg.Sheet.Backend {
	case config.SinkSqlite:
		return sheet.OpenSqliteSink(cfg.Sheet.SqlitePath)
	case config.SinkGoogle:
		return sheet.NewGoogleSink(ctx, cfg.Sheet.SpreadsheetID, cfg.Sheet.CredsFile)
	default:
		return nil, fmt.Errorf("unknown sheet backend: %q", cfg.Sheet.Backend)
	}
}

// loadStreamListings builds the binding table from every destination group.
// A group that fails to load is logged and skipped; its instruments are
// simply absent from the table.
func loadStreamListings(ctx context.Context, cfg *config.Config, sink sheet.Sink, table *registry.Table) {
	for exchange, title := range cfg.Ingest.StreamSheets {
		rows, err := sink.ReadAllRows(ctx, title)
		if err != nil {
			log.Printf("❌ unable to load sheet %q: %v", title, err)
			continue
		}
		table.AddListing(title, rows, exchange)
	}
}
