// Package nlqctl implements the command-line client for the nlq API.
package nlqctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures caused by how the command was invoked.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// httpError is a non-2xx API response.
type httpError struct {
	status int
	body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request fails and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var usage *usageError
	if errors.As(err, &usage) {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	var apiErr *httpError
	if errors.As(err, &apiErr) {
		_, _ = fmt.Fprintln(stderr, formatAPIError(apiErr))
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
	return 1
}

func NewRootCommand(defaults Options) *cobra.Command {
	client := &apiClient{
		baseURL: firstNonEmpty(defaults.BaseURL, "http://localhost:8080"),
		timeout: durationOr(defaults.Timeout, 120*time.Second),
		http:    defaults.HTTPClient,
	}

	root := &cobra.Command{
		Use:           "nlqctl",
		Short:         "Ask questions of an nlq API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageErrorf("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})
	root.PersistentFlags().StringVar(&client.baseURL, "base-url", client.baseURL, "nlq API base URL")
	root.PersistentFlags().DurationVar(&client.timeout, "timeout", client.timeout, "HTTP timeout (e.g. 30s)")

	var raw bool
	ask := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a natural-language question (POST /api/v1/query)",
		Args: func(_ *cobra.Command, args []string) error {
			if strings.TrimSpace(strings.Join(args, " ")) == "" {
				return usageErrorf("ask requires a question")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"query": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			body, err := client.do(cmd.Context(), http.MethodPost, "/api/v1/query", payload)
			if err != nil {
				return err
			}
			if raw {
				return printJSON(cmd.OutOrStdout(), body)
			}
			var answer struct {
				Response string `json:"response"`
			}
			if err := json.Unmarshal(body, &answer); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer.Response)
			return err
		},
	}
	ask.Flags().BoolVar(&raw, "json", false, "print the raw JSON response")

	root.AddCommand(
		ask,
		endpointCommand(client, "health", "Check liveness (GET /v1/health)", http.MethodGet, "/v1/health"),
		endpointCommand(client, "ready", "Check readiness (GET /v1/ready)", http.MethodGet, "/v1/ready"),
		endpointCommand(client, "schema", "Show the schema the service answers from (GET /api/v1/schema)", http.MethodGet, "/api/v1/schema"),
		endpointCommand(client, "schema-refresh", "Reload the database schema (POST /api/v1/schema/refresh)", http.MethodPost, "/api/v1/schema/refresh"),
	)
	return root
}

func endpointCommand(client *apiClient, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("%s takes no arguments", use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := client.do(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

type apiClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	client := c.http
	if client == nil {
		client = &http.Client{Timeout: c.timeout}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: responseBody}
	}
	return responseBody, nil
}

// formatAPIError prefers the detail and error code of a structured error
// body over the raw payload.
func formatAPIError(err *httpError) string {
	var body struct {
		Detail    string `json:"detail"`
		ErrorCode string `json:"error_code"`
		RequestID string `json:"request_id"`
	}
	if jsonErr := json.Unmarshal(err.body, &body); jsonErr != nil || body.Detail == "" {
		return err.Error()
	}
	message := fmt.Sprintf("http %d %s: %s", err.status, body.ErrorCode, body.Detail)
	if body.RequestID != "" {
		message += " (request_id " + body.RequestID + ")"
	}
	return message
}

func printJSON(w io.Writer, raw []byte) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, err := fmt.Fprintln(w, pretty)
		return err
	}
	if len(raw) > 0 {
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
