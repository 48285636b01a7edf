// Package enforcer closes tabs that open blocked sites while blocking is on.
package enforcer

import (
	"context"
	"errors"
	"log"

	"github.com/valentindosimont/focusgate/internal/blocklist"
	"github.com/valentindosimont/focusgate/internal/browser"
)

// Gate reports whether blocking applies right now. Implementations run the
// session expiry check before answering.
type Gate interface {
	Blocking(ctx context.Context) bool
}

type BlockedSource interface {
	BlockedURLs(ctx context.Context) ([]string, error)
}

type Enforcer struct {
	gate    Gate
	blocked BlockedSource
	tabs    browser.Tabs
	debug   bool
}

func New(gate Gate, blocked BlockedSource, tabs browser.Tabs) *Enforcer {
	return &Enforcer{gate: gate, blocked: blocked, tabs: tabs}
}

// SetDebug enables per-event logging
func (e *Enforcer) SetDebug(debug bool) {
	e.debug = debug
}

func (e *Enforcer) debugLog(format string, args ...interface{}) {
	if e.debug {
		log.Printf("enforcer: "+format, args...)
	}
}

// OnBeforeNavigate handles a navigation that is about to commit. Sub-frame
// navigations are ignored. It reports whether the tab was closed.
func (e *Enforcer) OnBeforeNavigate(ctx context.Context, ev browser.Event) bool {
	if !ev.MainFrame() {
		return false
	}
	return e.check(ctx, ev.TabID, ev.URL)
}

// OnTabUpdated handles a URL change seen after the fact, such as
// client-side routing.
func (e *Enforcer) OnTabUpdated(ctx context.Context, tabID int, url string) bool {
	if url == "" {
		return false
	}
	return e.check(ctx, tabID, url)
}

func (e *Enforcer) check(ctx context.Context, tabID int, url string) bool {
	if !e.gate.Blocking(ctx) {
		return false
	}

	entries, err := e.blocked.BlockedURLs(ctx)
	if err != nil {
		log.Printf("enforcer: load blocked urls: %v", err)
		return false
	}

	entry, ok := blocklist.MatchAny(url, entries)
	if !ok {
		return false
	}
	return e.close(ctx, tabID, url, entry)
}

func (e *Enforcer) close(ctx context.Context, tabID int, url, entry string) bool {
	err := e.tabs.CloseTab(ctx, tabID)
	switch {
	case err == nil:
		log.Printf("enforcer: closed tab %d (%s matched %s)", tabID, url, entry)
		return true
	case errors.Is(err, browser.ErrTabNotFound):
		e.debugLog("tab %d already gone", tabID)
		return false
	default:
		log.Printf("enforcer: close tab %d: %v", tabID, err)
		return false
	}
}

// Sweep applies the blocked set to every open tab and returns how many
// tabs were closed.
func (e *Enforcer) Sweep(ctx context.Context) int {
	if !e.gate.Blocking(ctx) {
		return 0
	}

	entries, err := e.blocked.BlockedURLs(ctx)
	if err != nil {
		log.Printf("enforcer: load blocked urls: %v", err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	tabs, err := e.tabs.Tabs(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrNotConnected) {
			e.debugLog("sweep skipped, browser not connected")
		} else {
			log.Printf("enforcer: list tabs: %v", err)
		}
		return 0
	}

	closed := 0
	for _, tab := range tabs {
		entry, ok := blocklist.MatchAny(tab.URL, entries)
		if !ok {
			continue
		}
		if e.close(ctx, tab.ID, tab.URL, entry) {
			closed++
		}
	}
	e.debugLog("sweep closed %d of %d tabs", closed, len(tabs))
	return closed
}
