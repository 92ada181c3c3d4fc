// Package eventbus implements spec.md §4.3's named-event publish/
// subscribe capability, expressed as the {On, Off, Emit} interface
// spec.md §9 calls for so the token manager can publish on the same bus
// an enclosing SDK already exposes to application-level subscribers.
package eventbus

import (
	"reflect"
	"sync"
)

// Handler receives an event's payload arguments.
type Handler func(args ...any)

// Bus is the capability interface the token manager is constructed
// against. A host SDK's own bus satisfies this trivially; Default below
// is a standalone implementation for callers with no enclosing SDK.
type Bus interface {
	On(event string, handler Handler)
	Off(event string, handler Handler)
	Emit(event string, args ...any)
}

type subscription struct {
	handler Handler
	id      uint64
}

// Default is a minimal Bus implementation: a mutex-guarded map of event
// name to an ordered list of handlers. Handlers for one event run
// synchronously, in subscription order, on the calling goroutine.
type Default struct {
	mu     sync.Mutex
	subs   map[string][]subscription
	nextID uint64
}

var _ Bus = (*Default)(nil)

// New creates an empty Default bus.
func New() *Default {
	return &Default{subs: map[string][]subscription{}}
}

// On subscribes handler to event. On takes no context argument: Go has no
// implicit `this`, so binding a context is the caller's own closure rather
// than a runtime feature of On itself; see Bind.
func (b *Default) On(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[event] = append(b.subs[event], subscription{handler: handler, id: b.nextID})
}

// Off removes handler from event's subscriber list. If handler is nil,
// every subscriber of event is removed.
func (b *Default) Off(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler == nil {
		delete(b.subs, event)
		return
	}
	kept := b.subs[event][:0:0]
	for _, s := range b.subs[event] {
		if funcPointer(s.handler) != funcPointer(handler) {
			kept = append(kept, s)
		}
	}
	b.subs[event] = kept
}

// Emit invokes every subscriber of event, in subscription order, on the
// calling goroutine.
func (b *Default) Emit(event string, args ...any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[event]))
	for i, s := range b.subs[event] {
		handlers[i] = s.handler
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(args...)
	}
}

// Bind returns a Handler that calls fn with ctx as its first received
// "receiver" argument, the Go idiom for spec.md §4.3's "binds this of
// the handler to ctx when provided" — Go closures capture ctx directly
// instead of rebinding a method receiver at call time.
func Bind[T any](ctx T, fn func(ctx T, args ...any)) Handler {
	return func(args ...any) { fn(ctx, args...) }
}

// funcPointer identifies a Handler by its underlying code pointer via
// reflection — Go function values aren't comparable, so this is the
// closest practical equivalent to JS's "same function reference" check
// off(event, handler) relies on. The one gap: two closures created from
// the same literal (e.g. two Bind calls with different ctx) share a code
// pointer and are treated as equal here, unlike JS. Off therefore removes
// every subscriber created from the same function literal as handler,
// even when the exact Handler value passed to On is passed to Off.
func funcPointer(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}
