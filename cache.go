package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RuleCache caches decoded rule lists per storage slot.
// With a watcher attached, edits to slot files on disk drop the cached copy.
type RuleCache struct {
	sync.RWMutex
	slots    map[string]cachedRules
	watcher  *fsnotify.Watcher
	watchDir string
}

type cachedRules struct {
	rules    []Rule
	loadedAt time.Time
}

// SlotInfo describes one cached slot for the admin endpoint
type SlotInfo struct {
	Slot     string    `json:"slot"`
	Rules    int       `json:"rules"`
	Enabled  int       `json:"enabled"`
	LoadedAt time.Time `json:"loaded_at"`
}

func NewRuleCache() *RuleCache {
	return &RuleCache{
		slots: make(map[string]cachedRules),
	}
}

// Watch starts watching dir for slot file changes. Call WatchFiles in a
// goroutine afterwards.
func (rc *RuleCache) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	rc.Lock()
	rc.watcher = watcher
	rc.watchDir = dir
	rc.Unlock()

	log.Printf("[cache] File watcher initialized for: %s", dir)
	return nil
}

func (rc *RuleCache) Close() {
	rc.Lock()
	defer rc.Unlock()
	if rc.watcher != nil {
		rc.watcher.Close()
		rc.watcher = nil
	}
}

// WatchFiles invalidates slots whose files are written, created, renamed or
// removed. It returns when the watcher is closed.
func (rc *RuleCache) WatchFiles() {
	rc.RLock()
	watcher := rc.watcher
	rc.RUnlock()
	if watcher == nil {
		return
	}

	log.Println("[cache] File watcher started")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			rc.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[cache] File watcher error: %v", err)
		}
	}
}

func (rc *RuleCache) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	slot, ok := slotFromFile(event.Name)
	if !ok {
		return
	}

	log.Printf("[cache] File changed: %s, reloading slot: %s", event.Name, slot)
	rc.Invalidate(slot)
}

// Get returns the cached rules for slot, calling load on a miss.
// A load that fails is not cached: its rules and error are handed back for
// this call only. The returned slice is a copy and may be modified by the
// caller.
func (rc *RuleCache) Get(slot string, load func() ([]Rule, error)) ([]Rule, error) {
	rc.RLock()
	entry, exists := rc.slots[slot]
	rc.RUnlock()

	if exists {
		return cloneRules(entry.rules), nil
	}

	rc.Lock()
	defer rc.Unlock()

	// Double-check after acquiring write lock
	if entry, exists := rc.slots[slot]; exists {
		return cloneRules(entry.rules), nil
	}

	rules, err := load()
	if err != nil {
		return cloneRules(rules), err
	}
	rc.slots[slot] = cachedRules{rules: cloneRules(rules), loadedAt: time.Now()}
	return cloneRules(rules), nil
}

// Put stores rules for slot after a successful write
func (rc *RuleCache) Put(slot string, rules []Rule) {
	rc.Lock()
	defer rc.Unlock()
	rc.slots[slot] = cachedRules{rules: cloneRules(rules), loadedAt: time.Now()}
}

// Invalidate drops the cached copy of slot
func (rc *RuleCache) Invalidate(slot string) {
	rc.Lock()
	delete(rc.slots, slot)
	rc.Unlock()
}

// InvalidateAll drops every cached slot and returns how many there were
func (rc *RuleCache) InvalidateAll() int {
	rc.Lock()
	defer rc.Unlock()
	count := len(rc.slots)
	rc.slots = make(map[string]cachedRules)
	return count
}

// Info lists the cached slots
func (rc *RuleCache) Info() []SlotInfo {
	rc.RLock()
	defer rc.RUnlock()

	infos := make([]SlotInfo, 0, len(rc.slots))
	for slot, entry := range rc.slots {
		enabled := 0
		for _, r := range entry.rules {
			if r.Enabled {
				enabled++
			}
		}
		infos = append(infos, SlotInfo{
			Slot:     slot,
			Rules:    len(entry.rules),
			Enabled:  enabled,
			LoadedAt: entry.loadedAt,
		})
	}
	return infos
}

// WatchDir is the directory being watched, or "" without a watcher
func (rc *RuleCache) WatchDir() string {
	rc.RLock()
	defer rc.RUnlock()
	return rc.watchDir
}
