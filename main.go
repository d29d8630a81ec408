package main

import (
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	for _, w := range cfg.Warnings() {
		log.Printf("Warning: %s", w)
	}

	store, err := NewStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open rule store: %v", err)
	}
	defer store.Close()

	defaults, err := LoadSeedRules(cfg.SeedPath)
	if err != nil {
		log.Printf("Warning: %v, using built-in default rules", err)
		defaults = DefaultRules()
	}

	// Initialize rule cache, with a file watcher when rules live on disk
	cache := NewRuleCache()
	defer cache.Close()
	if fs, ok := store.(*fileStore); ok {
		if err := cache.Watch(fs.Dir()); err != nil {
			log.Fatalf("Failed to initialize rule cache: %v", err)
		}
		// Start file watcher in background
		go cache.WatchFiles()
	}

	book := NewRuleBook(store, cache, defaults)
	api := NewAPI(book, cache)
	webhook := NewWebhookHandler(cfg, NewGraphSender(cfg), book)

	e := newServer(api, webhook)

	log.Printf("Marketplace auto-reply started on port %s", cfg.Port)
	log.Printf("Rule store: %s", cfg.StoreDriver)
	if cfg.AutoReplyUseRules {
		log.Printf("Webhook replies use the stored rules")
	} else {
		log.Printf("Webhook replies use DEFAULT_REPLY_TEXT")
	}

	e.Logger.Fatal(e.Start(":" + cfg.Port))
}

// newServer builds the echo instance with all routes registered
func newServer(api *API, webhook *WebhookHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Messenger webhook
	for _, path := range []string{"/api/webhook", "/webhook"} {
		e.GET(path, webhook.Verify)
		e.POST(path, webhook.Receive)
	}

	// Rule editor
	e.GET("/api/rules", api.handleListRules)
	e.POST("/api/rules", api.handleAddRule)
	e.POST("/api/rules/reset", api.handleResetRules)
	e.PATCH("/api/rules/:id", api.handleUpdateRule)
	e.DELETE("/api/rules/:id", api.handleRemoveRule)
	e.POST("/api/compose", api.handleCompose)
	e.GET("/api/compose", api.handleCompose)

	e.GET("/health", handleHealth)

	// Admin endpoints for manual reload
	e.POST("/admin/reload/:slot", api.handleReloadSlot)
	e.POST("/admin/reload-all", api.handleReloadAll)
	e.GET("/admin/cache-info", api.handleCacheInfo)

	return e
}
