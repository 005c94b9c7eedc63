package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// a missing .env is fine, flags and the real environment still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "receipt-scanner.db", "Database file path")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: text or json")

		visionBackend = fs.StringLong("vision-backend", "gemini", "Image parser: gemini, ollama, openai or none")
		textBackend   = fs.StringLong("text-backend", "gemini", "OCR text parser: gemini, ollama, openai or none")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", scanning.DefaultOllamaURL, "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", scanning.DefaultOllamaModel, "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel   = fs.StringLong("openai-model", scanning.DefaultOpenAIModel, "OpenAI model name")
		openaiURL     = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (optional)")

		ocrEngine   = fs.StringLong("ocr", "tesseract", "OCR engine: tesseract, gosseract or none")
		ocrBinary   = fs.StringLong("tesseract-bin", "tesseract", "Path to the tesseract executable")
		ocrLanguage = fs.StringLong("ocr-lang", "eng", "Tesseract language")

		tierTimeout     = fs.DurationLong("tier-timeout", scanning.DefaultTierTimeout, "Deadline for each extraction tier")
		breakerFailures = fs.IntLong("breaker-failures", 5, "Consecutive backend failures before it is skipped (0 disables)")
		breakerCooldown = fs.DurationLong("breaker-cooldown", 30*time.Second, "How long a tripped backend is skipped")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	breaker := scanning.BreakerSettings{
		ConsecutiveFailures: uint32(max(*breakerFailures, 0)),
		Cooldown:            *breakerCooldown,
	}
	backends := backendConfigs{
		"gemini": {Name: "gemini", APIKey: firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")), Model: *geminiModel, Breaker: breaker},
		"ollama": {Name: "ollama", Model: *ollamaModel, BaseURL: *ollamaURL, Breaker: breaker},
		"openai": {Name: "openai", APIKey: firstNonEmpty(*openaiKey, os.Getenv("OPENAI_API_KEY")), Model: *openaiModel, BaseURL: *openaiURL, Breaker: breaker},
	}

	slog.Info("Initializing parsers...", "vision", *visionBackend, "text", *textBackend)
	parsers := map[string]scanning.StructuredParser{}
	vision, err := backends.parser(ctx, *visionBackend, parsers)
	if err != nil {
		slog.Error("Failed to initialize vision parser", "error", err)
		os.Exit(1)
	}
	text, err := backends.parser(ctx, *textBackend, parsers)
	if err != nil {
		slog.Error("Failed to initialize text parser", "error", err)
		os.Exit(1)
	}
	defer func() {
		for name, p := range parsers {
			if err := p.Close(); err != nil {
				slog.Warn("Failed to close parser", "backend", name, "error", err)
			}
		}
	}()

	ocr, err := scanning.NewRecognizer(*ocrEngine, *ocrBinary, *ocrLanguage)
	if err != nil {
		slog.Error("Failed to initialize OCR", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline := scanning.NewPipeline(scanning.PipelineConfig{
		Vision:      vision,
		Text:        text,
		OCR:         ocr,
		Metrics:     scanning.NewMetrics(registry),
		TierTimeout: *tierTimeout,
	})
	for name, ok := range pipeline.Capabilities() {
		if !ok {
			slog.Warn("Extraction backend unavailable", "capability", name)
		}
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, pipeline, store)
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

type backendConfigs map[string]scanning.BackendConfig

// parser builds the named backend once and shares it between tiers.
func (b backendConfigs) parser(ctx context.Context, name string, built map[string]scanning.StructuredParser) (scanning.StructuredParser, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return nil, nil
	}
	if p, ok := built[name]; ok {
		return p, nil
	}
	cfg, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown AI backend %q", scanning.ErrConfiguration, name)
	}
	p, err := scanning.NewParser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !p.Available() {
		slog.Warn("AI backend is not configured and will be skipped", "backend", name)
	}
	built[name] = p
	return p, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q (must be 'text' or 'json')", format)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
