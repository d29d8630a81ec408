package main

import (
	"encoding/json"
	"time"
)

// Rule is one keyword/template pair of the auto-reply list.
// Keyword "*" matches any message; anything else is a case-insensitive regex.
type Rule struct {
	ID      string `json:"id" yaml:"id"`
	Keyword string `json:"keyword" yaml:"keyword"`
	Reply   string `json:"reply" yaml:"reply"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// RulePatch carries a partial rule update; nil fields are left untouched
type RulePatch struct {
	Keyword *string `json:"keyword,omitempty"`
	Reply   *string `json:"reply,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ReplyVars are the values substituted into a reply template
type ReplyVars struct {
	Item  string
	Price string
	Area  string
}

// Request/Response structures
type ComposeRequest struct {
	BuyerMessage string `json:"buyer_message" form:"buyer_message" query:"buyer_message"`
	ItemTitle    string `json:"item_title" form:"item_title" query:"item_title"`
	Price        string `json:"price" form:"price" query:"price"`
	Area         string `json:"area" form:"area" query:"area"`
}

type ComposeResponse struct {
	Reply       string `json:"reply"`
	MatchedRule string `json:"matched_rule"` // rule id, or "default"
}

type RulesResponse struct {
	Rules   []Rule   `json:"rules"`
	Invalid []string `json:"invalid,omitempty"` // ids of rules whose keyword does not compile
}

type ReloadResponse struct {
	Message    string    `json:"message"`
	Slot       string    `json:"slot,omitempty"`
	ReloadedAt time.Time `json:"reloaded_at"`
}

type StatusResponse struct {
	Status string `json:"status"` // "ok" or "ignored"
}

// Webhook payload as delivered by the Messenger platform.
// Inner events stay raw so one malformed event cannot spoil its siblings.
type webhookPayload struct {
	Object string          `json:"object"`
	Entry  json.RawMessage `json:"entry"`
}

type webhookEntry struct {
	Messaging []json.RawMessage `json:"messaging"`
	Standby   []json.RawMessage `json:"standby"`
}

type messagingEvent struct {
	Sender *struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

// MessageEvent is a single inbound buyer message worth answering
type MessageEvent struct {
	SenderID string
	Text     string
}

// Delivery is the outcome of parsing a webhook POST body.
// Applicable is false when the body is not a page delivery at all.
type Delivery struct {
	Applicable bool
	Events     []MessageEvent
	Skipped    int // malformed, echo or sender-less events
}
