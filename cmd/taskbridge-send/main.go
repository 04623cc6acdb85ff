// Command taskbridge-send fabricates a Todoist webhook delivery, signs it
// with the shared client secret, and posts it to a running bridge.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agentworkforce/taskbridge/internal/bridge"
)

func main() {
	webhookURL := flag.String("url", envOrDefault("TASKBRIDGE_WEBHOOK_URL", "http://127.0.0.1:8080/webhook/todoist"), "webhook URL to post to")
	event := flag.String("event", "item:added", "event name (item:added, item:updated, item:completed, item:uncompleted, item:deleted)")
	payloadFile := flag.String("payload", "", "path to a JSON file containing the full envelope")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("TODOIST_CLIENT_SECRET"))
	if secret == "" {
		log.Fatalf("TODOIST_CLIENT_SECRET is required to sign the payload")
	}

	body, err := buildPayload(*event, *payloadFile)
	if err != nil {
		log.Fatalf("failed to build payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, *webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Sign the exact bytes being sent; re-encoding would invalidate it.
	req.Header.Set("X-Todoist-Hmac-SHA256", bridge.ComputeSignature(secret, body))

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}

	fmt.Printf("status: %d\n", resp.StatusCode)
	fmt.Printf("response: %s\n", strings.TrimSpace(string(respBody)))
}

func buildPayload(event, payloadFile string) ([]byte, error) {
	if payloadFile != "" {
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, err
		}
		var envelope map[string]any
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, err
		}
		if _, ok := envelope["event_name"]; !ok {
			envelope["event_name"] = event
		}
		return json.Marshal(envelope)
	}
	sample := map[string]any{
		"event_name": event,
		"user_id":    12345678,
		"version":    "9",
		"event_data": map[string]any{
			"id":           "2995104339",
			"checked":      event == "item:completed",
			"content":      "Test task",
			"description":  "",
			"due":          nil,
			"priority":     1,
			"project_id":   "2203306141",
			"section_id":   nil,
			"parent_id":    nil,
			"user_id":      12345678,
			"added_by_uid": 12345678,
		},
	}
	return json.Marshal(sample)
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
