package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/scan-insight/internal/analysis"
	"github.com/zombor/scan-insight/internal/item"
	"github.com/zombor/scan-insight/internal/scanning"
	"github.com/zombor/scan-insight/internal/server"
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

	// A missing .env is normal; keys may come from flags or the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("scan-insight")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "scan-insight.db", "Database file path")
		storagePath = fs.StringLong("storage", "./images", "Image storage directory (ignored when --s3-bucket is set)")
		cacheDir    = fs.StringLong("cache-dir", "", "Directory for captures awaiting save (default: system temp dir)")
		migrate     = fs.BoolLong("migrate", "Import legacy savedItems/savedPictures data before serving")
		scanTTL     = fs.DurationLong("scan-ttl", server.DefaultScanTTL, "How long an untouched scan is kept before it is discarded")

		ocrBackend     = fs.StringLong("ocr", "vision", "OCR backend: 'vision' or 'gemini'")
		ocrTimeout     = fs.DurationLong("ocr-timeout", scanning.DefaultTimeout, "Timeout for a single OCR call")
		ocrCacheSize   = fs.IntLong("ocr-cache-size", 128, "Number of OCR results kept in memory (0 disables)")
		visionKey      = fs.StringLong("vision-key", "", "Google Cloud Vision API key")
		visionEndpoint = fs.StringLong("vision-endpoint", "", "Cloud Vision endpoint override")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")

		analysisBackend = fs.StringLong("analysis", "cohere", "Analysis backend: 'cohere', 'gemini' or 'ollama'")
		analysisTimeout = fs.DurationLong("analysis-timeout", analysis.DefaultTimeout, "Timeout for a single analysis call")
		maxTokens       = fs.IntLong("max-tokens", analysis.DefaultMaxTokens, "Maximum generated tokens per analysis")
		temperature     = fs.Float64Long("temperature", analysis.DefaultTemperature, "Sampling temperature")
		cohereKey       = fs.StringLong("cohere-key", "", "Cohere API key")
		cohereEndpoint  = fs.StringLong("cohere-endpoint", "https://api.cohere.ai", "Cohere API base URL")
		cohereModel     = fs.StringLong("cohere-model", "command", "Cohere model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")

		s3Endpoint  = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint (host:port)")
		s3Region    = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3AccessKey = fs.StringLong("s3-access-key", "", "S3 access key")
		s3SecretKey = fs.StringLong("s3-secret-key", "", "S3 secret key")
		s3Bucket    = fs.StringLong("s3-bucket", "", "S3 bucket for saved images (enables S3 storage)")
		s3Prefix    = fs.StringLong("s3-prefix", "images", "Key prefix inside the bucket")
		s3SSL       = fs.BoolLong("s3-ssl", "Use TLS for the S3 endpoint")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCAN_INSIGHT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...")
	db, err := item.NewBoltKV(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := item.NewStore(db)

	if *migrate {
		slog.Info("Migrating legacy items...")
		n, err := store.Migrate(time.Now().UTC())
		if err != nil {
			slog.Error("Failed to migrate legacy items", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrated legacy items", "count", n)
	}

	if *geminiKey == "" {
		*geminiKey = os.Getenv("GEMINI_API_KEY")
	}

	// Initialize OCR backend
	ocrConfig := scanning.Config{Timeout: *ocrTimeout}
	var recognizer scanning.Recognizer
	switch *ocrBackend {
	case "vision":
		ocrConfig.APIKey = *visionKey
		ocrConfig.Endpoint = *visionEndpoint
		slog.Info("Initializing Cloud Vision OCR...")
		recognizer, err = scanning.NewVision(ctx, ocrConfig)
	case "gemini":
		ocrConfig.APIKey = *geminiKey
		ocrConfig.Model = *geminiModel
		slog.Info("Initializing Gemini OCR...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(ctx, ocrConfig)
	default:
		err = fmt.Errorf("invalid ocr backend %q, valid: vision or gemini", *ocrBackend)
	}
	if err != nil {
		slog.Error("Failed to initialize OCR", "error", err)
		os.Exit(1)
	}
	if *ocrCacheSize > 0 {
		recognizer, err = scanning.NewCachingRecognizer(recognizer, *ocrCacheSize)
		if err != nil {
			slog.Error("Failed to initialize OCR cache", "error", err)
			os.Exit(1)
		}
	}
	defer recognizer.Close()

	// Initialize analysis backend
	analysisConfig := analysis.Config{
		Timeout:     *analysisTimeout,
		MaxTokens:   *maxTokens,
		Temperature: *temperature,
	}
	var generator analysis.Generator
	switch *analysisBackend {
	case "cohere":
		analysisConfig.APIKey = *cohereKey
		analysisConfig.Endpoint = *cohereEndpoint
		analysisConfig.Model = *cohereModel
		slog.Info("Initializing Cohere analysis...", "model", *cohereModel)
		generator, err = analysis.NewCohere(analysisConfig)
	case "gemini":
		analysisConfig.APIKey = *geminiKey
		analysisConfig.Model = *geminiModel
		slog.Info("Initializing Gemini analysis...", "model", *geminiModel)
		generator, err = analysis.NewGemini(ctx, analysisConfig)
	case "ollama":
		analysisConfig.Endpoint = *ollamaURL
		analysisConfig.Model = *ollamaModel
		slog.Info("Initializing Ollama analysis...", "url", *ollamaURL, "model", *ollamaModel)
		generator, err = analysis.NewOllama(analysisConfig)
	default:
		err = fmt.Errorf("invalid analysis backend %q, valid: cohere, gemini or ollama", *analysisBackend)
	}
	if err != nil {
		slog.Error("Failed to initialize analysis", "error", err)
		os.Exit(1)
	}
	analyst := analysis.NewClient(generator, analysisConfig)
	defer analyst.Close()

	// Initialize storage
	var images item.ImageStore
	if *s3Bucket != "" {
		slog.Info("Initializing S3 storage...", "endpoint", *s3Endpoint, "bucket", *s3Bucket)
		images, err = item.NewS3Storage(item.S3Config{
			Endpoint:  *s3Endpoint,
			Region:    *s3Region,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
			Bucket:    *s3Bucket,
			Prefix:    *s3Prefix,
			UseSSL:    *s3SSL,
		})
	} else {
		slog.Info("Initializing storage...", "path", *storagePath)
		images, err = item.NewLocalStorage(*storagePath)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	captureDir := *cacheDir
	if captureDir == "" {
		captureDir = os.TempDir()
	}
	if err := os.MkdirAll(captureDir, 0755); err != nil {
		slog.Error("Failed to create cache directory", "path", captureDir, "error", err)
		os.Exit(1)
	}

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(server.Deps{
		Library:    item.NewLibrary(store, images),
		Recognizer: recognizer,
		Analyst:    analyst,
		CacheDir:   captureDir,
		ScanTTL:    *scanTTL,
	}, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting server", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down cleanly", "error", err)
	}
}
