package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trackdrop/src/cleanup"
	"trackdrop/src/client"
	"trackdrop/src/config"
	"trackdrop/src/debug"
	"trackdrop/src/dedup"
	"trackdrop/src/discovery"
	"trackdrop/src/downloader"
	"trackdrop/src/feedback"
	"trackdrop/src/history"
	"trackdrop/src/organizer"
	"trackdrop/src/run"
	"trackdrop/src/tagger"
	"trackdrop/src/util"
)

func main() {
	flags, err := config.GetFlags()
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.ReadEnv(flags.CfgPath)
	cfg.Flags = flags
	debug.Init(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := util.NewHttp(util.HttpClientConfig{Timeout: cfg.HTTPTimeout, Retries: cfg.HTTPRetries})

	libraryClient := client.NewClient(&cfg, httpClient)
	store := history.NewStore(cfg.HistoryCfg)
	tag := tagger.New(cfg.CleanupCfg)
	dispatcher := feedback.NewDispatcher(cfg.SourcesCfg, httpClient)

	runner := &run.Runner{
		Cfg:       &cfg,
		Cleaner:   cleanup.NewCleaner(cfg, libraryClient.API, dispatcher, tag),
		Discovery: discovery.NewDiscoverer(cfg.SourcesCfg, httpClient),
		Enricher:  discovery.NewDeezer(httpClient),
		Resolver:  dedup.NewResolver(store, libraryClient),
		Scheduler: downloader.NewScheduler(&cfg.DownloadCfg),
		Placer:    organizer.New(cfg.LibraryCfg, tag),
		History:   store,
		Library:   libraryClient,
	}

	report, err := runner.Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}
	report.Log()
}
