package platform

import (
	"sync"
	"sync/atomic"
)

// MethodHandler handles incoming method calls on a channel.
type MethodHandler func(method string, args any) (any, error)

// MethodChannel provides bidirectional method-call communication with native code.
type MethodChannel struct {
	name    string
	mu      sync.RWMutex
	handler MethodHandler
}

// NewMethodChannel creates a method channel and registers it by name,
// replacing any channel previously registered under that name.
func NewMethodChannel(name string) *MethodChannel {
	ch := &MethodChannel{name: name}
	registry.methods.Store(name, ch)
	return ch
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// SetHandler sets the handler for incoming method calls from native code.
func (c *MethodChannel) SetHandler(handler MethodHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Invoke calls a method on the native side and returns the result.
// This blocks until the native side responds or an error occurs.
func (c *MethodChannel) Invoke(method string, args any) (any, error) {
	return invokeNative(c.name, method, args)
}

func (c *MethodChannel) handleCall(method string, args any) (any, error) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return nil, ErrMethodNotFound
	}
	return handler(method, args)
}

// EventHandler receives events from an EventChannel.
type EventHandler struct {
	OnEvent func(data any)
	OnError func(err error)
	OnDone  func()
}

// Subscription represents an active event subscription.
type Subscription struct {
	channel  *EventChannel
	handler  EventHandler
	canceled atomic.Bool
}

// Cancel stops receiving events on this subscription.
func (s *Subscription) Cancel() {
	if s.canceled.CompareAndSwap(false, true) {
		s.channel.removeSubscription(s)
	}
}

// IsCanceled returns true if this subscription has been canceled.
func (s *Subscription) IsCanceled() bool {
	return s.canceled.Load()
}

// EventChannel provides stream-based event communication from native to Go.
type EventChannel struct {
	name          string
	mu            sync.Mutex
	subscriptions []*Subscription
	started       bool
}

// NewEventChannel creates an event channel and registers it by name.
func NewEventChannel(name string) *EventChannel {
	ch := &EventChannel{name: name}
	registry.events.Store(name, ch)
	return ch
}

// Name returns the channel name.
func (c *EventChannel) Name() string {
	return c.name
}

// Listen subscribes to events on this channel. The native stream is started
// with the first subscription; if no bridge is connected yet it starts when
// SetNativeBridge is called.
func (c *EventChannel) Listen(handler EventHandler) *Subscription {
	sub := &Subscription{channel: c, handler: handler}
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, sub)
	shouldStart := !c.started && bridgeConnected()
	if shouldStart {
		c.started = true
	}
	c.mu.Unlock()

	if shouldStart {
		if err := startEventStream(c.name); err != nil {
			c.mu.Lock()
			c.started = false
			c.mu.Unlock()
			if handler.OnError != nil {
				handler.OnError(err)
			}
		}
	}
	return sub
}

func (c *EventChannel) removeSubscription(sub *Subscription) {
	c.mu.Lock()
	for i, s := range c.subscriptions {
		if s == sub {
			c.subscriptions = append(c.subscriptions[:i], c.subscriptions[i+1:]...)
			break
		}
	}
	shouldStop := len(c.subscriptions) == 0 && c.started
	if shouldStop {
		c.started = false
	}
	c.mu.Unlock()

	if shouldStop {
		// Failures are reported by stopEventStream.
		_ = stopEventStream(c.name)
	}
}

func (c *EventChannel) snapshot() []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]*Subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)
	return subs
}

func (c *EventChannel) dispatchEvent(data any) {
	for _, sub := range c.snapshot() {
		if !sub.IsCanceled() && sub.handler.OnEvent != nil {
			sub.handler.OnEvent(data)
		}
	}
}

func (c *EventChannel) dispatchError(err error) {
	for _, sub := range c.snapshot() {
		if !sub.IsCanceled() && sub.handler.OnError != nil {
			sub.handler.OnError(err)
		}
	}
}

func (c *EventChannel) dispatchDone() {
	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = nil
	c.started = false
	c.mu.Unlock()

	for _, sub := range subs {
		sub.canceled.Store(true)
		if sub.handler.OnDone != nil {
			sub.handler.OnDone()
		}
	}
}
