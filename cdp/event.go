package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"

	"github.com/editorqa/uidriver/log"
)

// eventBufferSize is large enough to absorb bursts of console messages
// while the subscriber is busy.
const eventBufferSize = 256

// Event is a CDP event received from the browser.
type Event struct {
	Name      cdproto.MethodType
	Data      any
	SessionID string
}

type subscription struct {
	sessionID string
	ch        chan *Event
}

type eventWatcher struct {
	logger *log.Logger
	subsMu sync.RWMutex
	subs   map[cdproto.MethodType][]*subscription
	closed bool
}

func newEventWatcher(logger *log.Logger) *eventWatcher {
	return &eventWatcher{
		logger: logger,
		subs:   make(map[cdproto.MethodType][]*subscription),
	}
}

// subscribe returns a channel receiving the given events of a CDP session,
// and a function that unsubscribes and closes the channel.
func (w *eventWatcher) subscribe(sessionID string, events ...cdproto.MethodType) (<-chan *Event, func()) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	sub := &subscription{
		sessionID: sessionID,
		ch:        make(chan *Event, eventBufferSize),
	}
	if w.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	for _, evt := range events {
		w.subs[evt] = append(w.subs[evt], sub)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			w.subsMu.Lock()
			defer w.subsMu.Unlock()
			if w.closed {
				return
			}
			for _, evt := range events {
				w.subs[evt] = removeSub(w.subs[evt], sub)
			}
			close(sub.ch)
		})
	}

	return sub.ch, unsubscribe
}

func removeSub(subs []*subscription, sub *subscription) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != sub {
			out = append(out, s)
		}
	}
	return out
}

func (w *eventWatcher) notify(evt *Event) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for _, sub := range w.subs[evt.Name] {
		if sub.sessionID != evt.SessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			w.logger.Warnf("cdp:eventWatcher", "dropping event %q for session %q: subscriber is full",
				evt.Name, evt.SessionID)
		}
	}
}

// close closes every subscription channel. Subscribing after close
// returns a closed channel.
func (w *eventWatcher) close() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	if w.closed {
		return
	}
	w.closed = true

	seen := make(map[*subscription]bool)
	for _, subs := range w.subs {
		for _, sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				close(sub.ch)
			}
		}
	}
	w.subs = nil
}
