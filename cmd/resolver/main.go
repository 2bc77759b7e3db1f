package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"trustresolver/internal/resolver/apiv1"
	"trustresolver/internal/resolver/db"
	"trustresolver/internal/resolver/httpserver"
	"trustresolver/internal/resolver/leaderelect"
	"trustresolver/internal/resolver/poller"
	"trustresolver/pkg/cache"
	"trustresolver/pkg/configuration"
	"trustresolver/pkg/credeval"
	"trustresolver/pkg/didresolver"
	"trustresolver/pkg/indexer"
	"trustresolver/pkg/kvclient"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/reattempt"
	"trustresolver/pkg/trace"
	"trustresolver/pkg/trustresolver"
	"trustresolver/pkg/vpderef"
	"trustresolver/pkg/vsreq"
)

type service interface {
	Close(ctx context.Context) error
}

func main() {
	var (
		wg                 = &sync.WaitGroup{}
		ctx                = context.Background()
		services           = make(map[string]service)
		serviceName string = "resolver"
	)

	cfg, err := configuration.New(ctx)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(serviceName, cfg.Common.Log.FolderPath, cfg.Common.Production)
	if err != nil {
		panic(err)
	}

	mainLog := log.New("main")

	tracer, err := trace.New(ctx, cfg, log, "trustresolver", serviceName)
	if err != nil {
		panic(err)
	}

	kv, err := kvclient.New(ctx, cfg, tracer, log)
	if err != nil {
		panic(err)
	}

	dbService, err := db.New(ctx, cfg, tracer, log)
	services["dbService"] = dbService
	if err != nil {
		panic(err)
	}

	objectCache := cache.New(time.Duration(cfg.Resolver.ObjectCacheTTLSeconds) * time.Second)

	dids := didresolver.New(objectCache, log)
	vps := vpderef.New(objectCache, log)

	idx, err := indexer.New(&cfg.Resolver.Indexer, log)
	if err != nil {
		panic(err)
	}

	watcher, err := indexer.NewBlockNotifier(cfg.Resolver.Indexer.BaseURL, log)
	if err != nil {
		panic(err)
	}

	creds := credeval.New(idx, dids, cfg.Resolver.ECSDigests, cfg.Resolver.DisableDigestSRI, log)
	vs := vsreq.New()

	resolver := trustresolver.New(dids, vps, creds, vs, dbService.TrustResults, log)

	reattemptScheduler := reattempt.New(dbService.Reattemptable, log)

	elector := leaderelect.New(kv, dbService, time.Duration(cfg.Resolver.LeaderLeaseSeconds)*time.Second, log)

	pollerCfg := poller.Config{
		PollInterval:         time.Duration(cfg.Resolver.PollIntervalSeconds) * time.Second,
		TrustTTL:             time.Duration(cfg.Resolver.TrustTTLSeconds) * time.Second,
		TTLRefreshRatio:      cfg.Resolver.TTLRefreshRatio,
		ReattemptRetention:   time.Duration(cfg.Resolver.ReattemptRetentionDays) * 24 * time.Hour,
		LeaderLease:          time.Duration(cfg.Resolver.LeaderLeaseSeconds) * time.Second,
		AllowedEcosystemDIDs: cfg.Resolver.AllowedEcosystemDIDs,
	}

	pollerService := poller.New(wg, elector, idx, watcher, dids, vps, resolver, dbService.TrustResults, dbService.ResolverState, reattemptScheduler, pollerCfg, log)
	if cfg.Resolver.Role == "leader" {
		go pollerService.Run(ctx)
	}
	services["pollerService"] = pollerService

	apiv1Client, err := apiv1.New(ctx, cfg, dbService.TrustResults, idx, dbService.ResolverState, nil, nil, log)
	if err != nil {
		panic(err)
	}

	httpService, err := httpserver.New(ctx, cfg, apiv1Client, tracer, log)
	services["httpService"] = httpService
	if err != nil {
		panic(err)
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan

	mainLog.Info("HALTING SIGNAL!")

	for serviceName, service := range services {
		if err := service.Close(ctx); err != nil {
			mainLog.Error(err, "serviceName", serviceName)
		}
	}

	if err := tracer.Shutdown(ctx); err != nil {
		mainLog.Error(err, "Tracer shutdown")
	}

	wg.Wait()

	mainLog.Info("Stopped")
}
