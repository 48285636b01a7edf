package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	frameNavigate   = "navigate"
	frameTabUpdated = "tabUpdated"
	frameTabs       = "tabs"
	frameTabRemoved = "tabRemoved"
	frameResult     = "result"

	frameCloseTab = "closeTab"
	frameSetIcon  = "setIcon"
	frameNotify   = "notify"

	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Extension origins are chrome-extension://<id>; the listener is loopback only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	TabID   int    `json:"tabId,omitempty"`
	FrameID int    `json:"frameId,omitempty"`
	URL     string `json:"url,omitempty"`
	Tabs    []Tab  `json:"tabs,omitempty"`
	Error   string `json:"error,omitempty"`
	Active  *bool  `json:"active,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Bridge is the WebSocket endpoint the extension connects to. Only one
// extension connection is live at a time; a new one replaces the old.
type Bridge struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	tabs    map[int]string
	pending map[string]chan error

	writeMu sync.Mutex

	eventCh      chan Event
	stopCh       chan struct{}
	stopOnce     sync.Once
	closeTimeout time.Duration
	newID        func() string
}

func NewBridge(closeTimeout time.Duration) *Bridge {
	return &Bridge{
		tabs:         make(map[int]string),
		pending:      make(map[string]chan error),
		eventCh:      make(chan Event, 100),
		stopCh:       make(chan struct{}),
		closeTimeout: closeTimeout,
		newID:        uuid.NewString,
	}
}

// Events returns the channel of browser events
func (b *Bridge) Events() <-chan Event {
	return b.eventCh
}

// Connected reports whether an extension is attached
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// ServeHTTP upgrades the request and reads frames until the connection drops.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bridge: upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	old := b.conn
	b.conn = conn
	b.tabs = make(map[int]string)
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	log.Printf("bridge: extension connected from %s", r.RemoteAddr)
	b.emit(Event{Kind: EventConnected})

	defer b.disconnect(conn)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("bridge: read: %v", err)
			}
			return
		}
		b.handle(f)
	}
}

func (b *Bridge) disconnect(conn *websocket.Conn) {
	_ = conn.Close()

	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.tabs = make(map[int]string)
	pending := b.pending
	b.pending = make(map[string]chan error)
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- ErrNotConnected
	}
	log.Printf("bridge: extension disconnected")
	b.emit(Event{Kind: EventDisconnected})
}

func (b *Bridge) handle(f frame) {
	switch f.Type {
	case frameNavigate:
		if f.FrameID == 0 {
			b.setTab(f.TabID, f.URL)
		}
		b.emit(Event{Kind: EventNavigate, TabID: f.TabID, FrameID: f.FrameID, URL: f.URL})

	case frameTabUpdated:
		b.setTab(f.TabID, f.URL)
		b.emit(Event{Kind: EventTabUpdated, TabID: f.TabID, URL: f.URL})

	case frameTabs:
		b.mu.Lock()
		b.tabs = make(map[int]string, len(f.Tabs))
		for _, t := range f.Tabs {
			b.tabs[t.ID] = t.URL
		}
		b.mu.Unlock()
		b.emit(Event{Kind: EventTabs})

	case frameTabRemoved:
		b.mu.Lock()
		delete(b.tabs, f.TabID)
		b.mu.Unlock()

	case frameResult:
		b.mu.Lock()
		ch, ok := b.pending[f.ID]
		delete(b.pending, f.ID)
		b.mu.Unlock()
		if ok {
			ch <- resultError(f.Error)
		}

	default:
		log.Printf("bridge: unknown frame type %q", f.Type)
	}
}

func resultError(text string) error {
	switch {
	case text == "":
		return nil
	case strings.Contains(text, "No tab with id"):
		return ErrTabNotFound
	default:
		return errors.New(text)
	}
}

func (b *Bridge) setTab(id int, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[id] = url
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Bridge) send(f frame) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

// Tabs returns the open tabs known from the extension's reports
func (b *Bridge) Tabs(ctx context.Context) ([]Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrNotConnected
	}

	tabs := make([]Tab, 0, len(b.tabs))
	for id, url := range b.tabs {
		tabs = append(tabs, Tab{ID: id, URL: url})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs, nil
}

// CloseTab asks the extension to close a tab and waits for its answer.
func (b *Bridge) CloseTab(ctx context.Context, tabID int) error {
	id := b.newID()
	ch := make(chan error, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	forget := func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}

	if err := b.send(frame{Type: frameCloseTab, ID: id, TabID: tabID}); err != nil {
		forget()
		return err
	}

	timer := time.NewTimer(b.closeTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		if err == nil || errors.Is(err, ErrTabNotFound) {
			b.mu.Lock()
			delete(b.tabs, tabID)
			b.mu.Unlock()
		}
		return err
	case <-timer.C:
		forget()
		return fmt.Errorf("close tab %d: timed out after %v", tabID, b.closeTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

// SetIcon switches the toolbar icon between its active and idle images
func (b *Bridge) SetIcon(active bool) error {
	return b.send(frame{Type: frameSetIcon, Active: &active})
}

// Notify shows a desktop notification through the extension
func (b *Bridge) Notify(title, message string) error {
	return b.send(frame{Type: frameNotify, Title: title, Message: message})
}

// Close drops the connection and stops event delivery
func (b *Bridge) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
