package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rendis/leadtap/internal/config"
	"github.com/rendis/leadtap/internal/server"
	"github.com/rendis/leadtap/internal/server/liststore"
	"github.com/rendis/leadtap/internal/server/places"
	"github.com/rendis/leadtap/internal/server/scrape"
)

func runServe(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var addr, listsDir string
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&addr, "addr", cfg.Server.Addr, "Listen address")
	fs.StringVar(&listsDir, "lists", cfg.Lists.Dir, "Directory holding the list workbooks")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap serve [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	log := zap.L()
	defer log.Sync()

	store, err := liststore.New(listsDir, log.Named("liststore"))
	if err != nil {
		return err
	}

	cache, err := places.NewCache(cfg.Lists.CacheDB)
	if err != nil {
		return err
	}
	defer cache.Close()

	client := places.NewClient(cfg.Scrape.Lang, cfg.Scrape.ProxyURL, cfg.Scrape.Zoom, cfg.Scrape.RPS)
	finder := places.NewFinder(client, cache, log.Named("places"))
	geocoder := places.NewGeocoder()
	runner := scrape.NewRunner(store, finder, geocoder, log.Named("scrape"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, runner, geocoder, log.Named("http"))
	return srv.ListenAndServe(ctx, addr)
}
