package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckmesh/nlq/internal/cli/nlqctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("NLQ_CLI_TIMEOUT")), 120*time.Second)
	options := nlqctl.Options{
		BaseURL: envOr("NLQ_API_URL", "http://localhost:8080"),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := nlqctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid NLQ_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
