package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach-platform/internal/config"
)

// Client is the outbound REST adapter for the voice provider. It is used by
// the scheduler dispatcher at fire time; this package never decides when to
// place a call.

type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	http        *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// DialRequest asks the provider to place one outbound call.
type DialRequest struct {
	RecordID    string            `json:"-"`
	PhoneNumber string            `json:"-"`
	Metadata    map[string]string `json:"-"`
}

// DialResult is the provider's synchronous acceptance of a call. Everything
// after acceptance arrives via webhook events.
type DialResult struct {
	ProviderCallID string
	Status         string
}

type createCallRequest struct {
	AssistantID string            `json:"assistantId"`
	Customer    customerRef       `json:"customer"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type customerRef struct {
	Number string `json:"number"`
}

type createCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCall places an outbound call. The returned ProviderCallID is how all
// subsequent webhook events are matched back to our record.
func (c *Client) CreateCall(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.PhoneNumber == "" {
		return DialResult{}, fmt.Errorf("provider: phone number is required")
	}

	meta := map[string]string{"record_id": req.RecordID}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	payload, err := json.Marshal(createCallRequest{
		AssistantID: c.assistantID,
		Customer:    customerRef{Number: req.PhoneNumber},
		Metadata:    meta,
	})
	if err != nil {
		return DialResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(payload))
	if err != nil {
		return DialResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DialResult{}, fmt.Errorf("provider: create call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DialResult{}, fmt.Errorf("provider: create call returned %d: %s", resp.StatusCode, snippet)
	}

	var out createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DialResult{}, fmt.Errorf("provider: decode create call response: %w", err)
	}
	if out.ID == "" {
		return DialResult{}, fmt.Errorf("provider: create call response missing id")
	}
	return DialResult{ProviderCallID: out.ID, Status: out.Status}, nil
}
