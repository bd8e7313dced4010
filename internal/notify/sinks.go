package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Publisher is the broker operation the MQTT sink needs. Satisfied by
// the infrastructure mqtt client.
type Publisher interface {
	PublishString(topic, payload string, qos byte, retained bool) error
}

// MQTTSink publishes notifications to a broker topic.
type MQTTSink struct {
	publisher Publisher
	topic     string
	qos       byte
}

// NewMQTTSink creates a sink publishing to the given topic.
func NewMQTTSink(publisher Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{publisher: publisher, topic: topic, qos: qos}
}

// Name identifies the sink in logs.
func (s *MQTTSink) Name() string { return "mqtt" }

// Deliver publishes the notification text. The broker client enforces
// its own publish timeout, so the dispatcher timeout is not re-applied.
func (s *MQTTSink) Deliver(text string, _ time.Duration) error {
	return s.publisher.PublishString(s.topic, text, s.qos, false)
}

// WebhookSink POSTs notifications to an HTTP endpoint as JSON.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to the given URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{}}
}

// Name identifies the sink in logs.
func (s *WebhookSink) Name() string { return "webhook" }

// webhookPayload is the POST body schema.
type webhookPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Deliver posts the notification, bounded by the dispatcher timeout.
// Any non-2xx response is a delivery failure.
func (s *WebhookSink) Deliver(text string, timeout time.Duration) error {
	body, err := json.Marshal(webhookPayload{
		Message:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is discarded

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
