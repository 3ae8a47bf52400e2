package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zombor/receipt2json/internal/config"
	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/extraction"
	"github.com/zombor/receipt2json/internal/receipt"
	"github.com/zombor/receipt2json/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var usageErr *config.UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "%s\n", usageErr.Usage)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner, err := newScanner(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize scanner", "scanner", cfg.Scanner, "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	extractor := extraction.NewService(
		document.NewNormalizer(cfg.RenderWorkers),
		extraction.NewCache(),
		scanner,
		cfg.ExtractionOptions(),
	)

	if cfg.Input != "" {
		if err := runOnce(ctx, extractor, cfg.Input, cfg.OutDir); err != nil {
			slog.Error("Extraction failed", "input", cfg.Input, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, extractor); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func newScanner(ctx context.Context, cfg *config.Config) (scanning.Scanner, error) {
	scanner, err := newModelScanner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ScannerRPS > 0 {
		slog.Info("Rate limiting scanner", "per_second", cfg.ScannerRPS)
		return scanning.NewLimited(scanner, cfg.ScannerRPS, 1), nil
	}
	return scanner, nil
}

func newModelScanner(ctx context.Context, cfg *config.Config) (scanning.Scanner, error) {
	switch cfg.Scanner {
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		return scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	}
	return nil, fmt.Errorf("unknown scanner %q", cfg.Scanner)
}

// runOnce extracts a single file, writes <invoice>.pdf and receipt.json to
// outDir and prints the JSON to stdout.
func runOnce(ctx context.Context, extractor *extraction.Service, input, outDir string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	doc, err := receipt.PrepareDocument(data, receipt.ResolveContentType(input, ""))
	if err != nil {
		return err
	}

	result, err := extractor.Extract(ctx, doc)
	if err != nil {
		return err
	}

	pdfData, err := document.EncodePDF(result.Image)
	if err != nil {
		return fmt.Errorf("encoding pdf: %w", err)
	}
	jsonData, err := result.Record.JSON()
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	pdfPath := filepath.Join(outDir, extraction.ExportFilename(result.Record.InvoiceNumber))
	if err := os.WriteFile(pdfPath, pdfData, 0644); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "receipt.json"), jsonData, 0644); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}

	slog.Info("Extraction written", "pdf", pdfPath, "items", len(result.Record.Items))
	fmt.Println(string(jsonData))
	return nil
}

func serve(ctx context.Context, cfg *config.Config, extractor *extraction.Service) error {
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	service := receipt.NewService(db, extractor, store)
	server := receipt.NewServer(service, receipt.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if cfg.AuthUser != "" || cfg.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	}
}
