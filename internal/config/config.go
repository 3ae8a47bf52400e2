// Package config loads runtime settings from flags and RECEIPT2JSON_* env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt2json/internal/extraction"
)

// EnvPrefix is prepended to flag names to form environment variable names,
// e.g. RECEIPT2JSON_GEMINI_KEY.
const EnvPrefix = "RECEIPT2JSON"

var (
	// ErrMissingAPIKey is returned when the Gemini scanner is selected without a key.
	ErrMissingAPIKey = errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")

	// ErrInvalid is wrapped by every other validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// UsageError is a flag parsing failure. Usage holds the rendered flag help.
type UsageError struct {
	Usage string
	Err   error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

type Config struct {
	Port        int
	DBPath      string
	StoragePath string

	Scanner     string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string
	// ScannerRPS caps scanner calls per second; zero disables the limit.
	ScannerRPS float64

	CallTimeout   time.Duration
	MaxAttempts   int
	RenderWorkers int

	AuthUser string
	AuthPass string

	// Input selects one-shot mode: extract this file into OutDir and exit.
	Input  string
	OutDir string

	ShowVersion bool
}

// Load parses args and the environment. It does not validate; call Validate.
func Load(args []string) (*Config, error) {
	def := extraction.DefaultOptions()
	fs := ff.NewFlagSet("receipt2json")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt2json.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./extractions", "Artifact storage directory")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		scannerRPS    = fs.Float64Long("scanner-rps", 0, "Max scanner calls per second (0 = unlimited)")
		callTimeout   = fs.DurationLong("call-timeout", def.CallTimeout, "Timeout for a single scanner call")
		maxAttempts   = fs.IntLong("max-attempts", def.MaxAttempts, "Scanner attempts per extraction")
		renderWorkers = fs.IntLong("render-workers", 1, "Parallel PDF page renders")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		input         = fs.StringLong("input", "", "Extract this file and exit instead of serving")
		outDir        = fs.StringLong("out-dir", ".", "Output directory for --input")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, &UsageError{Usage: ffhelp.Flags(fs).String(), Err: err}
	}

	cfg := &Config{
		Port:          *port,
		DBPath:        *dbPath,
		StoragePath:   *storagePath,
		Scanner:       *scannerType,
		GeminiKey:     *geminiKey,
		GeminiModel:   *geminiModel,
		OllamaURL:     *ollamaURL,
		OllamaModel:   *ollamaModel,
		ScannerRPS:    *scannerRPS,
		CallTimeout:   *callTimeout,
		MaxAttempts:   *maxAttempts,
		RenderWorkers: *renderWorkers,
		AuthUser:      *authUser,
		AuthPass:      *authPass,
		Input:         *input,
		OutDir:        *outDir,
		ShowVersion:   *showVersion,
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Scanner {
	case "gemini":
		if c.GeminiKey == "" {
			return ErrMissingAPIKey
		}
	case "ollama":
		if c.OllamaURL == "" {
			return fmt.Errorf("%w: ollama-url is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: scanner %q, want gemini or ollama", ErrInvalid, c.Scanner)
	}
	if c.ScannerRPS < 0 {
		return fmt.Errorf("%w: scanner-rps must not be negative", ErrInvalid)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: call-timeout must be positive", ErrInvalid)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max-attempts must be at least 1", ErrInvalid)
	}
	if c.RenderWorkers < 1 {
		return fmt.Errorf("%w: render-workers must be at least 1", ErrInvalid)
	}
	if c.Input == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	return nil
}

// ExtractionOptions returns pipeline options with the configured retry policy.
func (c *Config) ExtractionOptions() extraction.Options {
	opts := extraction.DefaultOptions()
	opts.CallTimeout = c.CallTimeout
	opts.MaxAttempts = c.MaxAttempts
	return opts
}
