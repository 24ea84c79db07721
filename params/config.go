package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr        string
	CORSOrigins []string
	// DepositIncrement is the cash credited by POST /users/{user}/balance/add
	DepositIncrement int64
}

type Log struct {
	File  string // empty logs to stdout only
	Level string
}

type Matcher struct {
	// Interval between background matching passes. Orders placed through the
	// API are matched immediately; the periodic pass picks up anything left
	// crossable after cancels or deposits. Zero disables the loop.
	Interval time.Duration
}

type Feeder struct {
	Enabled  bool
	Mode     string // "default" or "high"
	Traders  int    // 0 keeps the mode's value
	Interval time.Duration
	Symbols  []string
}

type Config struct {
	API     API
	Log     Log
	Matcher Matcher
	Feeder  Feeder
}

func Default() Config {
	return Config{
		API: API{
			Addr:             ":8080",
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:3001"},
			DepositIncrement: 100,
		},
		Log: Log{
			File:  "data/exchange.log",
			Level: "info",
		},
		Matcher: Matcher{
			Interval: 100 * time.Millisecond,
		},
		Feeder: Feeder{
			Mode: "default",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = splitList(origins)
	}
	if inc := os.Getenv("DEPOSIT_INCREMENT"); inc != "" {
		if n, err := strconv.ParseInt(inc, 10, 64); err == nil && n >= 0 {
			cfg.API.DepositIncrement = n
		}
	}

	if file, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.Log.File = file
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if ms := os.Getenv("MATCH_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n >= 0 {
			cfg.Matcher.Interval = time.Duration(n) * time.Millisecond
		}
	}

	cfg.Feeder.Enabled = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.Feeder.Mode = getEnv("TXGEN_MODE", cfg.Feeder.Mode)
	if n := os.Getenv("TXGEN_TRADERS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.Feeder.Traders = v
		}
	}
	if ms := os.Getenv("TXGEN_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.Feeder.Interval = time.Duration(v) * time.Millisecond
		}
	}
	if syms := os.Getenv("TXGEN_SYMBOLS"); syms != "" {
		cfg.Feeder.Symbols = splitList(syms)
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses "a, b,,c" into [a b c]
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
