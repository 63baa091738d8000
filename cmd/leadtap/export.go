package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rendis/leadtap/internal/api"
	"github.com/rendis/leadtap/internal/config"
)

// runExport downloads a list workbook from the backend to a local file.
func runExport(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var list, output, backendURL string
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&list, "list", "", "List filename to download (required)")
	fs.StringVar(&output, "output", "", "Output path (default: the list filename)")
	fs.StringVar(&backendURL, "backend", cfg.Backend.BaseURL, "Backend base URL")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if list == "" {
		return fmt.Errorf("-list is required")
	}
	if output == "" {
		output = list
	}

	rc, err := api.New(backendURL).Download(context.Background(), list)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, rc)
	if err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Scritto %s (%d byte)\n", output, n)
	return nil
}
