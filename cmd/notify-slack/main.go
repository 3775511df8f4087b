// notify-slack is a Sentinel notifier plugin: it reads an alert message
// from stdin and posts it to a Slack incoming webhook, exiting non-zero on
// any delivery failure so internal/notify.Runner treats it as a failed
// notifier (spec.md §4.1's subprocess notifier protocol), adapting the
// webhook-posting idiom of the teacher's internal/notify/slack package.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const httpTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "notify-slack:", err)
		os.Exit(1)
	}
}

func run() error {
	webhookURL := flag.String("webhook-url", os.Getenv("SLACK_WEBHOOK_URL"), "Slack incoming webhook URL")
	flag.Parse()

	if *webhookURL == "" {
		return fmt.Errorf("no webhook URL configured (-webhook-url or SLACK_WEBHOOK_URL)")
	}

	message, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(message) == 0 {
		return fmt.Errorf("empty alert message on stdin")
	}

	return postWebhook(*webhookURL, string(message))
}

func postWebhook(webhookURL, text string) error {
	body, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req) //nolint:gosec // G704: webhookURL is from trusted local config, not user input
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
