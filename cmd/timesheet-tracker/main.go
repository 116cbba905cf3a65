package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"timesheet-tracker/internal/timesheet"
	"timesheet-tracker/internal/vision"
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

	fs := ff.NewFlagSet("timesheet-tracker")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "timesheet-tracker.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./timesheets", "Storage directory path")
		providerType = fs.StringLong("provider", "gemini", "Extraction provider: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		tesseractBin = fs.StringLong("tesseract", "", "Tesseract binary for OCR hints (empty disables OCR)")
		ocrWorkers   = fs.IntLong("ocr-workers", 2, "Maximum concurrent OCR processes")
		hoursTol     = fs.Float64Long("hours-tolerance", timesheet.DefaultHoursTolerance, "Tolerance for total hours comparison")
		lunchTol     = fs.IntLong("lunch-tolerance", timesheet.DefaultLunchToleranceMinutes, "Tolerance in minutes for lunch comparison")
		retries      = fs.IntLong("retries", 2, "Retries for transient extraction service failures")
		retryBackoff = fs.DurationLong("retry-backoff", 500*time.Millisecond, "Initial retry backoff, doubled per attempt")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		managerUser  = fs.StringLong("manager-user", "", "Manager basic auth username (optional)")
		managerPass  = fs.StringLong("manager-pass", "", "Manager basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TIMESHEET_TRACKER"),
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

	// Initialize database
	slog.Info("Initializing database...")
	db, err := timesheet.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize extraction provider based on type
	var provider vision.Provider
	switch *providerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini provider...", "model", *geminiModel)
		provider, err = vision.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama provider...", "url", *ollamaURL, "model", *ollamaModel)
		provider, err = vision.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider type", "type", *providerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer provider.Close()

	// Initialize OCR hint source
	var ocr vision.OCR = vision.NoOCR{}
	if *tesseractBin != "" {
		slog.Info("Initializing OCR...", "binary", *tesseractBin, "workers", *ocrWorkers)
		ocr = vision.NewTesseract(*tesseractBin, *ocrWorkers)
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := timesheet.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline and service
	engine := timesheet.NewEngine(*hoursTol, *lunchTol, timesheet.AlignByDate)
	pipeline := timesheet.NewPipeline(vision.NewExtractor(provider), ocr, engine, *retries, *retryBackoff)
	service := timesheet.NewService(db, store, pipeline)

	// Initialize server
	basicAuth := timesheet.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	managerAuth := timesheet.BasicAuth{
		Username: *managerUser,
		Password: *managerPass,
	}
	server := timesheet.NewServer(service, basicAuth, managerAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if *managerUser != "" || *managerPass != "" {
		slog.Info("Manager auth enabled", "user", *managerUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
