package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// API serves the rule editor backend and the admin endpoints
type API struct {
	book  *RuleBook
	cache *RuleCache
}

func NewAPI(book *RuleBook, cache *RuleCache) *API {
	return &API{book: book, cache: cache}
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

func (a *API) handleCacheInfo(c echo.Context) error {
	slots := a.cache.Info()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cached_slots": len(slots),
		"slots":        slots,
		"watching":     a.cache.WatchDir(),
		"timestamp":    time.Now(),
	})
}

func (a *API) handleReloadSlot(c echo.Context) error {
	slot := c.Param("slot")
	a.cache.Invalidate(slot)

	return c.JSON(http.StatusOK, ReloadResponse{
		Message:    fmt.Sprintf("Slot '%s' cache cleared and will reload on next request", slot),
		Slot:       slot,
		ReloadedAt: time.Now(),
	})
}

func (a *API) handleReloadAll(c echo.Context) error {
	count := a.cache.InvalidateAll()

	return c.JSON(http.StatusOK, ReloadResponse{
		Message:    fmt.Sprintf("All %d slot caches cleared and will reload on next request", count),
		ReloadedAt: time.Now(),
	})
}

func rulesResponse(rules []Rule) RulesResponse {
	resp := RulesResponse{Rules: rules}
	for _, r := range rules {
		if err := ValidateKeyword(r.Keyword); err != nil {
			resp.Invalid = append(resp.Invalid, r.ID)
		}
	}
	return resp
}

func (a *API) handleListRules(c echo.Context) error {
	return c.JSON(http.StatusOK, rulesResponse(a.book.Rules(c.Request().Context())))
}

// storageError answers a failed rule mutation
func storageError(c echo.Context, err error) error {
	if errors.Is(err, ErrSlotUnreadable) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Rule storage is unavailable, try again"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save rules"})
}

func (a *API) handleAddRule(c echo.Context) error {
	rule, err := a.book.Add(c.Request().Context())
	if err != nil {
		log.Printf("[rules] Failed to add rule: %v", err)
		return storageError(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (a *API) handleUpdateRule(c echo.Context) error {
	var patch RulePatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	rule, err := a.book.Update(c.Request().Context(), c.Param("id"), patch)
	if errors.Is(err, ErrRuleNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Rule not found: %s", c.Param("id")),
		})
	}
	if err != nil {
		log.Printf("[rules] Failed to update rule %s: %v", c.Param("id"), err)
		return storageError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (a *API) handleRemoveRule(c echo.Context) error {
	err := a.book.Remove(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrRuleNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Rule not found: %s", c.Param("id")),
		})
	}
	if err != nil {
		log.Printf("[rules] Failed to remove rule %s: %v", c.Param("id"), err)
		return storageError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) handleResetRules(c echo.Context) error {
	rules, err := a.book.Reset(c.Request().Context())
	if err != nil {
		log.Printf("[rules] Failed to reset rules: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save rules"})
	}
	return c.JSON(http.StatusOK, rulesResponse(rules))
}

func (a *API) handleCompose(c echo.Context) error {
	var req ComposeRequest

	// Bind request (works for both POST JSON and GET query params)
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	rules := a.book.Rules(c.Request().Context())
	return c.JSON(http.StatusOK, ComposeReply(rules, req))
}
