package main

// fallbackTemplate is used by the editor preview when no rule matches
const fallbackTemplate = "Thanks for reaching out! I'll get back to you shortly."

// defaultMatchID is reported as the matched rule when the fallback was used
const defaultMatchID = "default"

// ComposeReply runs the editor pipeline for one buyer message:
//  1. Match the message against the rules in list order
//  2. Take the matched rule's template, or the fallback template if none
//     matched (a matched rule with an empty reply also falls back)
//  3. Substitute item, price and area
//
// Returns the finished text and the id of the rule that produced it.
func ComposeReply(rules []Rule, req ComposeRequest) ComposeResponse {
	matchedID := defaultMatchID
	template := ""

	if rule, ok := MatchRule(rules, req.BuyerMessage); ok {
		matchedID = rule.ID
		template = rule.Reply
	}
	if template == "" {
		template = fallbackTemplate
	}

	return ComposeResponse{
		Reply: RenderReply(template, ReplyVars{
			Item:  req.ItemTitle,
			Price: req.Price,
			Area:  req.Area,
		}),
		MatchedRule: matchedID,
	}
}

// autoReplyText picks the text the webhook sends back to a buyer.
// Unless rule matching is switched on, every buyer gets the configured default
// text; the stored rule list is only used by the editor preview.
func autoReplyText(cfg *Config, rules []Rule, message string) string {
	if !cfg.AutoReplyUseRules {
		return cfg.DefaultReplyText
	}

	rule, ok := MatchRule(rules, message)
	if !ok || rule.Reply == "" {
		return cfg.DefaultReplyText
	}
	return RenderReply(rule.Reply, ReplyVars{})
}
