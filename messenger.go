package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Sender delivers a text message to a Messenger user
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

var errNoPageToken = errors.New("page access token not configured")

// GraphSender calls the Messenger Send API
type GraphSender struct {
	BaseURL     string
	Version     string
	AccessToken string
	Client      *http.Client
}

func NewGraphSender(cfg *Config) *GraphSender {
	return &GraphSender{
		BaseURL:     cfg.GraphAPIBaseURL,
		Version:     cfg.GraphAPIVersion,
		AccessToken: cfg.PageAccessToken,
		Client:      &http.Client{Timeout: cfg.SendTimeout},
	}
}

type sendRequest struct {
	Recipient     sendRecipient `json:"recipient"`
	MessagingType string        `json:"messaging_type"`
	Message       sendMessage   `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendMessage struct {
	Text string `json:"text"`
}

// SendText posts text to recipientID as a RESPONSE message
func (s *GraphSender) SendText(ctx context.Context, recipientID, text string) error {
	if s.AccessToken == "" {
		return errNoPageToken
	}

	body, err := json.Marshal(sendRequest{
		Recipient:     sendRecipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       sendMessage{Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/me/messages?access_token=%s",
		s.BaseURL, s.Version, url.QueryEscape(s.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to send message, status: %s, body: %s", resp.Status, bytes.TrimSpace(excerpt))
	}

	return nil
}
