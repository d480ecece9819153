package core

// Emitter is a minimal per-entity observer registry. Delivery is
// synchronous in the caller's goroutine, which keeps causality inside the
// owning room's serialized queue turn. Not safe for concurrent use; all
// mutation funnels through that queue.
type Emitter struct {
	handlers map[string][]func(payload any)
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: map[string][]func(payload any){}}
}

func (e *Emitter) On(event string, h func(payload any)) {
	e.handlers[event] = append(e.handlers[event], h)
}

func (e *Emitter) Emit(event string, payload any) {
	for _, h := range e.handlers[event] {
		h(payload)
	}
}
