package gateway

import (
	"log/slog"
	"sync"
	"time"

	"bugtriage/pkg/bus"
	"bugtriage/pkg/conversation"
)

// sessionRouter owns one conversation controller per transport and
// serializes inbound messages per session key.
type sessionRouter struct {
	newController func(transport string) *conversation.Controller
	log           *slog.Logger

	mu          sync.Mutex
	controllers map[string]*conversation.Controller
	locks       map[string]*sync.Mutex
}

func newSessionRouter(newController func(transport string) *conversation.Controller, log *slog.Logger) *sessionRouter {
	if log == nil {
		log = slog.Default()
	}

	return &sessionRouter{
		newController: newController,
		log:           log.With("component", "gateway.router"),
		controllers:   make(map[string]*conversation.Controller),
		locks:         make(map[string]*sync.Mutex),
	}
}

// controller returns the transport's controller, creating it on first use.
func (r *sessionRouter) controller(transport string) *conversation.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.controllers[transport]
	if !ok {
		ctrl = r.newController(transport)
		r.controllers[transport] = ctrl
		r.log.Debug("Conversation controller created", "transport", transport)
	}
	return ctrl
}

// lock blocks until the session key is free and returns its unlock func.
func (r *sessionRouter) lock(sessionKey string) func() {
	r.mu.Lock()
	keyMu, ok := r.locks[sessionKey]
	if !ok {
		keyMu = &sync.Mutex{}
		r.locks[sessionKey] = keyMu
	}
	r.mu.Unlock()

	keyMu.Lock()
	return keyMu.Unlock
}

// ActiveCount sums in-progress sessions across transports.
func (r *sessionRouter) ActiveCount() int {
	total := 0
	for _, ctrl := range r.snapshot() {
		total += ctrl.ActiveCount()
	}
	return total
}

// ExpireIdle expires idle sessions on every transport, keyed by transport.
// Each key is expired under the same lock inbound messages take, so an
// answer being handled finishes before the session is re-checked.
func (r *sessionRouter) ExpireIdle(now time.Time) map[string][]conversation.Key {
	expired := map[string][]conversation.Key{}
	for transport, ctrl := range r.snapshot() {
		for _, key := range ctrl.IdleKeys(now) {
			unlock := r.lock(sessionKey(transport, key))
			ok := ctrl.Expire(key, now)
			unlock()
			if ok {
				expired[transport] = append(expired[transport], key)
			}
		}
	}
	return expired
}

func sessionKey(transport string, key conversation.Key) string {
	return bus.InboundMessage{Channel: transport, ChatID: key.ChannelID, SenderID: key.UserID}.SessionKey()
}

// ActiveByTransport reports in-progress sessions per transport.
func (r *sessionRouter) ActiveByTransport() map[string]int {
	controllers := r.snapshot()
	out := make(map[string]int, len(controllers))
	for name, ctrl := range controllers {
		out[name] = ctrl.ActiveCount()
	}
	return out
}

func (r *sessionRouter) snapshot() map[string]*conversation.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*conversation.Controller, len(r.controllers))
	for name, ctrl := range r.controllers {
		out[name] = ctrl
	}
	return out
}
