package core

// Frame is a raw binary payload.
type Frame []byte

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Notifier delivers typed push notifications to one participant. The
// session layer emits through it without knowing the wire encoding.
type Notifier interface {
	Notify(event string, payload any)
}

// NopNotifier swallows notifications, for sessions whose transport is gone.
type NopNotifier struct{}

func (NopNotifier) Notify(string, any) {}
