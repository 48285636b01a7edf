package store

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports writes to the database files (main, -wal, -shm) so the
// daemon can reconcile against changes made by other processes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	base     string
	debounce time.Duration
	changeCh chan struct{}
	stopCh   chan struct{}
}

// NewWatcher watches the directory holding dbPath
func NewWatcher(dbPath string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(dbPath)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch db directory: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		base:     filepath.Base(dbPath),
		debounce: debounce,
		changeCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Changes delivers one signal per burst of writes
func (w *Watcher) Changes() <-chan struct{} {
	return w.changeCh
}

func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), w.base)
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("store: watcher error: %v", err)
		case <-fire:
			fire = nil
			select {
			case w.changeCh <- struct{}{}:
			default:
			}
		}
	}
}
