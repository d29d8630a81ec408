package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RulesSlot is the storage slot holding the JSON rule list
const RulesSlot = "rules.v1"

var (
	ErrRuleNotFound = errors.New("rule not found")

	// ErrSlotUnreadable means the stored list could not be read, so editing
	// it now would overwrite rules we never saw
	ErrSlotUnreadable = errors.New("rule storage unreadable")
)

// DefaultRules returns the built-in rule set: a wildcard greeting followed by
// availability, price negotiation and location answers.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "auto-greeting",
			Keyword: "*",
			Reply: "Hi! Thanks for your message about the item. I'm currently away from my phone but will reply shortly. In the meantime:\n\n" +
				"- Item is available unless marked sold\n" +
				"- Pickup near [Your Area]\n" +
				"- Cash or instant transfer on pickup\n" +
				"- If you'd like to reserve, please share your pickup day/time\n\n" +
				"Talk soon!",
			Enabled: true,
		},
		{
			ID:      "is-available",
			Keyword: "available",
			Reply:   "Yes, it's available! When would you like to pick it up? I'm near [Your Area].",
			Enabled: true,
		},
		{
			ID:      "lowest-price",
			Keyword: "lowest|best price|less|offer|discount|negot",
			Reply:   "I'm getting a lot of interest and the price is firm for now. Happy to prioritize pickup if you can collect today.",
			Enabled: true,
		},
		{
			ID:      "address",
			Keyword: "address|where|location|meet",
			Reply:   "Pickup is near [Your Area]. I'll share the exact address once we confirm a pickup time.",
			Enabled: true,
		},
	}
}

// LoadSeedRules reads a YAML list of rules to use instead of DefaultRules.
// An empty path returns the built-in set.
func LoadSeedRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed rules: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse seed rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("seed rules file %s has no rules", path)
	}

	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
	}
	return rules, nil
}

// decodeRules parses a stored rule list. Anything but a JSON array of rule
// objects is an error.
func decodeRules(data []byte) ([]Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("stored rules are not a JSON array")
	}

	var rules []Rule
	if err := json.Unmarshal(trimmed, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse stored rules: %w", err)
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

func encodeRules(rules []Rule) ([]byte, error) {
	if rules == nil {
		rules = []Rule{}
	}
	return json.Marshal(rules)
}

func cloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// RuleBook is the editable rule list stored in one slot of a KVStore.
// Every mutation rewrites the whole list.
type RuleBook struct {
	mu       sync.Mutex
	store    KVStore
	cache    *RuleCache
	slot     string
	defaults []Rule
}

// NewRuleBook creates a rule book over store. defaults is used whenever the
// slot is empty or unreadable, and by Reset.
func NewRuleBook(store KVStore, cache *RuleCache, defaults []Rule) *RuleBook {
	if cache == nil {
		cache = NewRuleCache()
	}
	if len(defaults) == 0 {
		defaults = DefaultRules()
	}
	return &RuleBook{
		store:    store,
		cache:    cache,
		slot:     RulesSlot,
		defaults: cloneRules(defaults),
	}
}

// Slot is the storage slot this book reads and writes
func (b *RuleBook) Slot() string {
	return b.slot
}

// Rules returns the current rule list. Missing or corrupt storage yields the
// default set; storage errors are logged and never returned.
func (b *RuleBook) Rules(ctx context.Context) []Rule {
	rules, _ := b.current(ctx)
	return rules
}

// current is Rules plus the read error, if the slot could not be read.
// On error the returned list is the default set and must not be saved back.
func (b *RuleBook) current(ctx context.Context) ([]Rule, error) {
	// a reader going away must not decide what every other reader sees
	ctx = context.WithoutCancel(ctx)
	return b.cache.Get(b.slot, func() ([]Rule, error) {
		return b.load(ctx)
	})
}

func (b *RuleBook) load(ctx context.Context) ([]Rule, error) {
	data, found, err := b.store.Get(ctx, b.slot)
	if err != nil {
		log.Printf("[rules] Failed to read slot %s, using defaults: %v", b.slot, err)
		return cloneRules(b.defaults), fmt.Errorf("%w: %v", ErrSlotUnreadable, err)
	}
	if !found {
		return cloneRules(b.defaults), nil
	}

	rules, err := decodeRules(data)
	if err != nil {
		log.Printf("[rules] Slot %s is corrupt, using defaults: %v", b.slot, err)
		return cloneRules(b.defaults), nil
	}
	return rules, nil
}

// Save replaces the stored list
func (b *RuleBook) Save(ctx context.Context, rules []Rule) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save(ctx, rules)
}

func (b *RuleBook) save(ctx context.Context, rules []Rule) error {
	data, err := encodeRules(rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := b.store.Set(ctx, b.slot, data); err != nil {
		return err
	}
	b.cache.Put(b.slot, rules)
	return nil
}

// Add appends a blank, enabled rule with a fresh id
func (b *RuleBook) Add(ctx context.Context) (Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules, err := b.current(ctx)
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{ID: uuid.NewString(), Enabled: true}
	rules = append(rules, rule)
	if err := b.save(ctx, rules); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Update applies patch to the rule with the given id
func (b *RuleBook) Update(ctx context.Context, id string, patch RulePatch) (Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules, err := b.current(ctx)
	if err != nil {
		return Rule{}, err
	}
	for i := range rules {
		if rules[i].ID != id {
			continue
		}
		if patch.Keyword != nil {
			rules[i].Keyword = *patch.Keyword
		}
		if patch.Reply != nil {
			rules[i].Reply = *patch.Reply
		}
		if patch.Enabled != nil {
			rules[i].Enabled = *patch.Enabled
		}
		if err := b.save(ctx, rules); err != nil {
			return Rule{}, err
		}
		return rules[i], nil
	}
	return Rule{}, ErrRuleNotFound
}

// Remove deletes the rule with the given id
func (b *RuleBook) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules, err := b.current(ctx)
	if err != nil {
		return err
	}
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rules) {
		return ErrRuleNotFound
	}
	return b.save(ctx, kept)
}

// Reset replaces the list with the default set
func (b *RuleBook) Reset(ctx context.Context) ([]Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules := cloneRules(b.defaults)
	if err := b.save(ctx, rules); err != nil {
		return nil, err
	}
	return cloneRules(rules), nil
}
