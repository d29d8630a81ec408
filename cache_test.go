package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRuleCache_LoadsOnce(t *testing.T) {
	cache := NewRuleCache()
	loads := 0
	load := func() ([]Rule, error) {
		loads++
		return []Rule{{ID: "a", Keyword: "*", Enabled: true}}, nil
	}

	cache.Get(RulesSlot, load)
	cache.Get(RulesSlot, load)

	if loads != 1 {
		t.Errorf("Expected 1 load, got %d", loads)
	}

	cache.Invalidate(RulesSlot)
	cache.Get(RulesSlot, load)
	if loads != 2 {
		t.Errorf("Expected reload after invalidate, got %d loads", loads)
	}
}

func TestRuleCache_FailedLoadNotCached(t *testing.T) {
	cache := NewRuleCache()
	fail := true
	load := func() ([]Rule, error) {
		if fail {
			return DefaultRules(), errors.New("read failed")
		}
		return []Rule{{ID: "stored", Keyword: "*", Enabled: true}}, nil
	}

	rules, err := cache.Get(RulesSlot, load)
	if err == nil || len(rules) != 4 {
		t.Fatalf("Expected defaults and an error, got %d rules, err=%v", len(rules), err)
	}
	if len(cache.Info()) != 0 {
		t.Error("Expected a failed load to stay out of the cache")
	}

	fail = false
	rules, err = cache.Get(RulesSlot, load)
	if err != nil || len(rules) != 1 || rules[0].ID != "stored" {
		t.Errorf("Expected stored rules after recovery, got %+v, err=%v", rules, err)
	}
}

func TestRuleCache_InfoAndInvalidateAll(t *testing.T) {
	cache := NewRuleCache()
	cache.Put("one", []Rule{{ID: "a", Enabled: true}, {ID: "b", Enabled: false}})
	cache.Put("two", nil)

	infos := cache.Info()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 slots, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Slot == "one" && (info.Rules != 2 || info.Enabled != 1) {
			t.Errorf("Unexpected info for slot one: %+v", info)
		}
	}

	if n := cache.InvalidateAll(); n != 2 {
		t.Errorf("Expected 2 invalidated slots, got %d", n)
	}
	if len(cache.Info()) != 0 {
		t.Error("Expected empty cache after InvalidateAll")
	}
}

func TestRuleCache_HandleEvent(t *testing.T) {
	cache := NewRuleCache()
	cache.Put(RulesSlot, DefaultRules())

	// chmod and temp files leave the cache alone
	cache.handleEvent(fsnotify.Event{Name: "/r/rules.v1.json", Op: fsnotify.Chmod})
	cache.handleEvent(fsnotify.Event{Name: "/r/.rules.v1.42.tmp", Op: fsnotify.Create})
	if len(cache.Info()) != 1 {
		t.Fatal("Expected slot to stay cached")
	}

	cache.handleEvent(fsnotify.Event{Name: "/r/rules.v1.json", Op: fsnotify.Write})
	if len(cache.Info()) != 0 {
		t.Error("Expected slot to be invalidated by a write")
	}
}

func TestRuleCache_WatchesFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	cache := NewRuleCache()
	if err := cache.Watch(dir); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cache.Close()
	go cache.WatchFiles()

	book := NewRuleBook(store, cache, nil)
	if got := book.Rules(ctx); len(got) != 4 {
		t.Fatalf("Expected defaults, got %d rules", len(got))
	}

	// edit the slot file behind the book's back
	edited := `[{"id":"hand-edited","keyword":"*","reply":"edited","enabled":true}]`
	if err := os.WriteFile(filepath.Join(dir, RulesSlot+".json"), []byte(edited), 0644); err != nil {
		t.Fatalf("Failed to write slot file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rules := book.Rules(ctx)
		if len(rules) == 1 && rules[0].ID == "hand-edited" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected cache to pick up the edited slot file")
}

func TestRuleCache_WatchMissingDir(t *testing.T) {
	cache := NewRuleCache()
	if err := cache.Watch(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error watching a missing directory")
	}
	if cache.WatchDir() != "" {
		t.Error("Expected no watch dir after failure")
	}
	// no watcher: returns immediately
	cache.WatchFiles()
}
