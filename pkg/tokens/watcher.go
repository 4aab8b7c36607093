package tokens

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/walteh/tokenhints/pkg/scheduler"
	"gitlab.com/tozd/go/errors"
)

// Watcher reports changes to token files on the OS filesystem. Parent
// directories are watched so editors that replace files on save are seen.
type Watcher struct {
	fsw       *fsnotify.Watcher
	files     map[string]struct{}
	debounce  time.Duration
	debouncer *scheduler.Debouncer
	onChange  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewWatcher(paths []string, debounce time.Duration, clock scheduler.Clock) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		files:     make(map[string]struct{}, len(paths)),
		debounce:  debounce,
		debouncer: scheduler.NewDebouncer(clock),
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	dirs := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, errors.Errorf("resolving %s: %w", p, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, errors.Errorf("watching directory %s: %w", dir, err)
		}
	}

	return w, nil
}

// Start returns a channel that receives a signal after a burst of changes.
func (w *Watcher) Start(ctx context.Context) <-chan struct{} {
	go w.loop(ctx)
	return w.onChange
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.debouncer.Cancel()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			zerolog.Ctx(ctx).Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("token file changed")
			w.debouncer.Schedule(w.debounce, w.notify)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zerolog.Ctx(ctx).Warn().Err(err).Msg("token file watcher error")

		case <-ctx.Done():
			w.Close()
			return

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.onChange <- struct{}{}:
	default:
	}
}

func (w *Watcher) isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}
