package connectivity

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FlagFile forces offline mode while a marker file exists. The file is
// watched with fsnotify so another process (tsync offline on) can flip the
// state of a running daemon.
type FlagFile struct {
	broadcaster
	path string

	mu      sync.Mutex
	offline bool
	running bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFlagFile returns an oracle for the marker at path.
func NewFlagFile(path string) *FlagFile {
	f := &FlagFile{path: path}
	f.offline = f.exists()
	return f
}

// Path returns the marker file path.
func (f *FlagFile) Path() string {
	return f.path
}

func (f *FlagFile) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return !f.exists()
	}
	return !f.offline
}

// SetOffline creates or removes the marker.
func (f *FlagFile) SetOffline(offline bool) error {
	if offline {
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("failed to create flag directory: %w", err)
		}
		if err := os.WriteFile(f.path, []byte("offline\n"), 0644); err != nil {
			return fmt.Errorf("failed to write offline flag: %w", err)
		}
	} else if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove offline flag: %w", err)
	}
	f.refresh()
	return nil
}

// Start watches the marker's directory. The directory is created if needed.
func (f *FlagFile) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("flag watcher already running")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create flag directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	f.offline = f.exists()
	f.running = true
	f.wg.Add(1)
	go f.processEvents()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (f *FlagFile) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	f.mu.Unlock()

	close(f.done)
	err := f.watcher.Close()
	f.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (f *FlagFile) processEvents() {
	defer f.wg.Done()

	name := filepath.Clean(f.path)
	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.refresh()
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// refresh re-reads the marker and publishes a transition on change.
func (f *FlagFile) refresh() {
	offline := f.exists()
	f.mu.Lock()
	changed := f.offline != offline
	f.offline = offline
	f.mu.Unlock()
	if changed {
		f.publish(!offline)
	}
}

func (f *FlagFile) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
