package techsync

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"github.com/sirupsen/logrus"
)

const probeTimeout = 3 * time.Second

// NetworkWatcher keeps the is-online signal for the agent. Online means the
// backend health endpoint answered a probe, not merely that the radio is
// associated. Constructed once in main and injected wherever needed; the
// offline -> online edge fires the reconnect hook exactly once per
// transition.
type NetworkWatcher struct {
	probeURL string
	httpc    *http.Client
	logger   *logrus.Logger
	onOnline func()

	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	nextID    int
}

func NewNetworkWatcher(probeURL string, logger *logrus.Logger, onOnline func()) *NetworkWatcher {
	return &NetworkWatcher{
		probeURL:  probeURL,
		httpc:     &http.Client{Timeout: probeTimeout},
		logger:    logger,
		onOnline:  onOnline,
		listeners: map[int]func(bool){},
	}
}

func (w *NetworkWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// AddListener registers a connectivity-transition callback and returns its
// unregister function. No ordering guarantee between listeners.
func (w *NetworkWatcher) AddListener(fn func(bool)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// Check runs an on-demand reachability probe and updates the signal. A
// probe failure of any kind reads as offline; no error reaches the caller.
func (w *NetworkWatcher) Check(ctx context.Context) bool {
	online := w.probe(ctx)

	w.mu.Lock()
	changed := online != w.online
	w.online = online
	var fire []func(bool)
	if changed {
		fire = make([]func(bool), 0, len(w.listeners))
		for _, fn := range w.listeners {
			fire = append(fire, fn)
		}
	}
	w.mu.Unlock()

	for _, fn := range fire {
		fn(online)
	}
	if changed && online && w.onOnline != nil && config.AutoSyncOnReconnect() {
		go w.onOnline()
	}
	return online
}

func (w *NetworkWatcher) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := w.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Run probes on an interval until the context ends.
func (w *NetworkWatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
