package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// pageObject is the only delivery object type we act on
const pageObject = "page"

// maxDeliveryBytes caps how much of a delivery body is read
const maxDeliveryBytes = 1 << 20

// ParseDelivery turns a webhook POST body into the events worth answering.
// It never fails: a body that is not a page delivery comes back with
// Applicable=false, and malformed entries or events are skipped.
func ParseDelivery(body []byte) Delivery {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Object != pageObject {
		return Delivery{}
	}

	delivery := Delivery{Applicable: true}

	var entries []json.RawMessage
	if err := json.Unmarshal(payload.Entry, &entries); err != nil {
		// entry missing or not an array: nothing to do
		return delivery
	}

	for _, rawEntry := range entries {
		var entry webhookEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			log.Printf("[webhook] Skipping malformed entry: %v", err)
			delivery.Skipped++
			continue
		}

		// standby is only consulted when messaging is absent altogether
		events := entry.Messaging
		if events == nil {
			events = entry.Standby
		}

		for _, rawEvent := range events {
			var ev messagingEvent
			if err := json.Unmarshal(rawEvent, &ev); err != nil {
				log.Printf("[webhook] Skipping malformed event: %v", err)
				delivery.Skipped++
				continue
			}
			if ev.Sender == nil || ev.Sender.ID == "" {
				delivery.Skipped++
				continue
			}
			if ev.Message != nil && ev.Message.IsEcho {
				delivery.Skipped++
				continue
			}

			text := ""
			if ev.Message != nil {
				text = ev.Message.Text
			}
			delivery.Events = append(delivery.Events, MessageEvent{
				SenderID: ev.Sender.ID,
				Text:     text,
			})
		}
	}

	return delivery
}

// WebhookHandler serves the Messenger webhook: the verification handshake
// and event deliveries.
type WebhookHandler struct {
	cfg    *Config
	sender Sender
	rules  *RuleBook
}

// NewWebhookHandler creates the handler. rules may be nil when
// cfg.AutoReplyUseRules is off.
func NewWebhookHandler(cfg *Config, sender Sender, rules *RuleBook) *WebhookHandler {
	return &WebhookHandler{
		cfg:    cfg,
		sender: sender,
		rules:  rules,
	}
}

// Verify answers the subscription handshake
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token == "" || challenge == "" {
		return c.String(http.StatusOK, "OK")
	}

	if h.cfg.VerifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerifyToken)) == 1 {
		log.Println("[webhook] Webhook verified successfully")
		return c.Blob(http.StatusOK, "text/plain", []byte(challenge))
	}

	log.Println("[webhook] Verification rejected: token mismatch")
	return c.String(http.StatusForbidden, "Forbidden")
}

// Receive handles an event delivery. The platform always gets 200 so it
// never retries a delivery because of its content.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDeliveryBytes))
	if err != nil {
		log.Printf("[webhook] Failed to read delivery body: %v", err)
		return c.JSON(http.StatusOK, StatusResponse{Status: "ignored"})
	}

	delivery := ParseDelivery(body)
	if !delivery.Applicable {
		return c.JSON(http.StatusOK, StatusResponse{Status: "ignored"})
	}

	sent := h.Dispatch(c.Request().Context(), delivery.Events)
	log.Printf("[webhook] Delivery processed: %d events, %d replies sent, %d skipped",
		len(delivery.Events), sent, delivery.Skipped)

	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Dispatch replies to every event concurrently and waits for all of them.
// A failing or panicking send is logged and does not affect its siblings.
// Returns the number of successful sends.
func (h *WebhookHandler) Dispatch(ctx context.Context, events []MessageEvent) int {
	if len(events) == 0 {
		return 0
	}

	var rules []Rule
	if h.cfg.AutoReplyUseRules && h.rules != nil {
		rules = h.rules.Rules(ctx)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)

	for _, ev := range events {
		wg.Add(1)
		go func(ev MessageEvent) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[webhook] Panic replying to %s: %v", ev.SenderID, r)
				}
			}()

			reply := autoReplyText(h.cfg, rules, ev.Text)
			if err := h.sender.SendText(ctx, ev.SenderID, reply); err != nil {
				log.Printf("[webhook] Failed to reply to %s: %v", ev.SenderID, err)
				return
			}

			mu.Lock()
			sent++
			mu.Unlock()
		}(ev)
	}

	wg.Wait()
	return sent
}
