package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/star/stargo/internal/api"
	"github.com/star/stargo/internal/cache"
	"github.com/star/stargo/internal/catalog"
	"github.com/star/stargo/internal/config"
	"github.com/star/stargo/internal/discovery"
	"github.com/star/stargo/internal/metrics"
	"github.com/star/stargo/internal/propagation"
	"github.com/star/stargo/internal/stream"
	"github.com/star/stargo/internal/tle"
	"github.com/star/stargo/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load(runtime.NumCPU(), logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := tle.NewStore()
	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)

	// Run one discovery crawl up front so any freshly-found supplemental
	// feeds are already in the fetcher's source list before the first fetch.
	extraURLs := cfg.TLE.ExtraSourceURLs
	if cfg.Discovery.Enabled {
		crawler := discovery.NewCrawler(logger)
		discCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		discovered, err := crawler.URLs(discCtx)
		cancel()
		if err != nil {
			logger.Warn("discovery crawl failed, using configured extra URLs only", "error", err)
		} else {
			extraURLs = append(append([]string{}, extraURLs...), discovered...)
			logger.Info("discovery crawl found supplemental TLE sources", "count", len(discovered))
		}
	}

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, extraURLs...)
	}

	var catalogStore *catalog.Store
	if cfg.Catalog.Enabled {
		catalogStore, err = catalog.Open(cfg.Catalog.Path)
		if err != nil {
			logger.Error("failed to open catalog database", "error", err)
			os.Exit(1)
		}
		defer catalogStore.Close()
	}

	// Attempt to load cached TLE data on startup.
	data, ts, err := tleCache.LoadLatest()
	if err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else {
		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil {
			logger.Warn("failed to parse cached TLE data", "error", err)
		} else if len(entries) > 0 {
			minEpoch := entries[0].Epoch
			maxEpoch := entries[0].Epoch
			for _, e := range entries[1:] {
				if e.Epoch.Before(minEpoch) {
					minEpoch = e.Epoch
				}
				if e.Epoch.After(maxEpoch) {
					maxEpoch = e.Epoch
				}
			}

			store.Set(&tle.TLEDataset{
				Source:    "cache",
				FetchedAt: ts,
				EpochRange: tle.EpochRange{
					Min: minEpoch,
					Max: maxEpoch,
				},
				Satellites: entries,
			})
			metrics.SetTLEDatasetCount(len(entries))
			logger.Info("loaded TLE data from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))

			if catalogStore != nil {
				if err := catalogStore.Upsert(entries, ts); err != nil {
					logger.Warn("failed to seed catalog from cached TLE data", "error", err)
				} else if n, err := catalogStore.Count(); err == nil {
					metrics.SetCatalogEntries(n)
				}
			}
		}
	}

	prop := propagation.NewPropagator(store, cfg.Prop, logger)
	metrics.SetPropagationWorkersActive(cfg.Prop.Workers)

	kfCache := cache.NewKeyframeCache(cfg.Cache, prop, store, logger)
	streamHandler := stream.NewHandler(kfCache, store, cfg.Stream, logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, cfg.Auth, api.Deps{
		Store:    store,
		TLECfg:   cfg.TLE,
		Fetcher:  fetcher,
		TLECache: tleCache,
		Catalog:  catalogStore,
		Prop:     prop,
		KFCache:  kfCache,
		Stream:   streamHandler,
		Web:      web.Content,
		Logger:   logger,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache background worker.
	go kfCache.Start(ctx)

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Periodically refetch the TLE dataset so satellites decay/reappear in
	// the served data instead of the process needing a manual /tle/fetch
	// call or a restart every time cfg.TLE.MaxAge passes.
	if fetcher != nil {
		go func() {
			ticker := time.NewTicker(cfg.TLE.MaxAge)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					refetchTLE(ctx, fetcher, store, tleCache, catalogStore, logger)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Periodically re-run discovery to pick up newly published supplemental
	// feeds, feeding them into the next scheduled fetch.
	if cfg.Discovery.Enabled && fetcher != nil {
		go func() {
			crawler := discovery.NewCrawler(logger)
			ticker := time.NewTicker(cfg.Discovery.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					urls, err := crawler.URLs(ctx)
					if err != nil {
						logger.Warn("periodic discovery crawl failed", "error", err)
						continue
					}
					fetcher.SetExtraSourceURLs(append(append([]string{}, cfg.TLE.ExtraSourceURLs...), urls...))
					logger.Info("periodic discovery crawl updated extra TLE sources", "count", len(urls))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled, "tle_fetch_enabled", cfg.TLE.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refetchTLE performs one fetch/parse/publish cycle, mirroring the API
// layer's on-demand handler so scheduled and ad-hoc refreshes behave
// identically.
func refetchTLE(ctx context.Context, fetcher *tle.Fetcher, store *tle.Store, tleCache *tle.Cache, catalogStore *catalog.Store, logger *slog.Logger) {
	store.Lock()
	defer store.Unlock()

	body, err := fetcher.Fetch(ctx)
	if err != nil {
		logger.Warn("scheduled TLE fetch failed", "error", err)
		return
	}

	entries, err := tle.Parse(bytes.NewReader(body), logger)
	if err != nil || len(entries) == 0 {
		logger.Warn("scheduled TLE fetch produced no usable entries", "error", err)
		return
	}

	now := time.Now()
	minEpoch, maxEpoch := entries[0].Epoch, entries[0].Epoch
	for _, e := range entries[1:] {
		if e.Epoch.Before(minEpoch) {
			minEpoch = e.Epoch
		}
		if e.Epoch.After(maxEpoch) {
			maxEpoch = e.Epoch
		}
	}

	store.Set(&tle.TLEDataset{
		Source:     fetcher.SourceURL(),
		FetchedAt:  now,
		EpochRange: tle.EpochRange{Min: minEpoch, Max: maxEpoch},
		Satellites: entries,
	})
	metrics.SetTLEDatasetCount(len(entries))
	logger.Info("scheduled TLE fetch complete", "count", len(entries))

	if tleCache != nil {
		if err := tleCache.Write(body, now); err != nil {
			logger.Warn("failed to snapshot scheduled TLE fetch", "error", err)
		}
	}
	if catalogStore != nil {
		if err := catalogStore.Upsert(entries, now); err != nil {
			logger.Warn("failed to update catalog from scheduled fetch", "error", err)
		} else if n, err := catalogStore.Count(); err == nil {
			metrics.SetCatalogEntries(n)
		}
	}
}
