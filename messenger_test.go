package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGraphSender_SendText(t *testing.T) {
	var (
		gotPath  string
		gotToken string
		gotBody  sendRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"recipient_id":"123","message_id":"m_1"}`))
	}))
	defer srv.Close()

	sender := NewGraphSender(&Config{
		GraphAPIBaseURL: srv.URL,
		GraphAPIVersion: "v18.0",
		PageAccessToken: "EAAG+token",
		SendTimeout:     5 * time.Second,
	})

	if err := sender.SendText(context.Background(), "123", "Thanks!"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotPath != "/v18.0/me/messages" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotToken != "EAAG+token" {
		t.Errorf("Unexpected token: %s", gotToken)
	}
	if gotBody.Recipient.ID != "123" || gotBody.Message.Text != "Thanks!" || gotBody.MessagingType != "RESPONSE" {
		t.Errorf("Unexpected body: %+v", gotBody)
	}
}

func TestGraphSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer srv.Close()

	sender := &GraphSender{BaseURL: srv.URL, Version: "v18.0", AccessToken: "bad"}
	err := sender.SendText(context.Background(), "123", "hi")
	if err == nil {
		t.Fatal("Expected an error for status 400")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Invalid OAuth") {
		t.Errorf("Expected status and body in error, got %v", err)
	}
}

func TestGraphSender_NoToken(t *testing.T) {
	sender := &GraphSender{BaseURL: "http://127.0.0.1:0", Version: "v18.0"}
	if err := sender.SendText(context.Background(), "123", "hi"); !errors.Is(err, errNoPageToken) {
		t.Errorf("Expected errNoPageToken, got %v", err)
	}
}

func TestGraphSender_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &GraphSender{BaseURL: srv.URL, Version: "v18.0", AccessToken: "t"}
	if err := sender.SendText(ctx, "123", "hi"); err == nil {
		t.Error("Expected an error for a canceled context")
	}
}
