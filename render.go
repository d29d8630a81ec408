package main

import "strings"

// Placeholders recognised in reply templates
const (
	placeholderArea  = "[Your Area]"
	placeholderItem  = "{item}"
	placeholderPrice = "{price}"
)

// Values used when the caller leaves a variable empty
const (
	defaultArea  = "my area"
	defaultItem  = "the item"
	defaultPrice = "the listed price"
)

// RenderReply substitutes every occurrence of the known placeholders.
// Any other text, including unknown {tokens}, is returned as is.
func RenderReply(template string, vars ReplyVars) string {
	if template == "" {
		return template
	}

	out := strings.ReplaceAll(template, placeholderArea, orDefault(vars.Area, defaultArea))
	out = strings.ReplaceAll(out, placeholderItem, orDefault(vars.Item, defaultItem))
	out = strings.ReplaceAll(out, placeholderPrice, orDefault(vars.Price, defaultPrice))
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
