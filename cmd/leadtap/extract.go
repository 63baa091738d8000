package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/config"
	"github.com/rendis/leadtap/internal/engine/leads"
	"github.com/rendis/leadtap/internal/engine/session"
	"github.com/rendis/leadtap/internal/model"
)

// runExtract drives a headless extraction against a running backend,
// printing progress to stderr.
func runExtract(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var params model.ExtractParams
	var keywordsStr, backendURL string

	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.StringVar(&params.City, "city", "", `Place name or "lat, lng" pair (required)`)
	fs.IntVar(&params.Radius, "radius", 2000, "Search radius in meters")
	fs.IntVar(&params.GridStep, "step", 500, "Grid step in meters")
	fs.StringVar(&keywordsStr, "keywords", "", "Comma-separated keywords (required)")
	fs.StringVar(&params.ListName, "list", "", "Target list filename (required)")
	fs.StringVar(&backendURL, "backend", cfg.Backend.BaseURL, "Backend base URL")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap extract [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadtap extract -city Torino -keywords \"bar,pizzeria\" -list clienti.xlsx\n")
		fmt.Fprintf(os.Stderr, "  leadtap extract -city \"45.07, 7.68\" -radius 1000 -step 250 -keywords bar -list clienti\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, k := range strings.Split(keywordsStr, ",") {
		if k = strings.TrimSpace(k); k != "" {
			params.Keywords = append(params.Keywords, k)
		}
	}
	if msg := params.Validate(); msg != "" {
		return fmt.Errorf("%s", msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.New(backendURL)
	rec := leads.NewReconciler(params.ListName, client, nil)
	sess := session.New(rec, nil)

	// Mirror the session log and progress onto stderr while the run
	// streams.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		printed := 0
		for {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			agg := sess.Aggregator()
			for _, line := range agg.Log()[printed:] {
				prefix := " "
				if line.IsError {
					prefix = "!"
				}
				fmt.Fprintf(os.Stderr, "%s %s\n", prefix, line.Message)
				printed++
			}
			if p := agg.Progress(); p.Label != "" {
				fmt.Fprintf(os.Stderr, "\r[%3d%%] %s", p.Value, p.Label)
			}
			if state := sess.State(); state == session.StateCompleted || state == session.StateFailed {
				return
			}
		}
	}()

	err = sess.Run(ctx, client, params)
	<-done
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Estrazione completata: %d lead in %s\n", rec.Len(), params.ListName)
	return nil
}
