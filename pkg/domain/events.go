package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCreate   EventType = "create"
	EventSignal   EventType = "signal"
	EventDestroy  EventType = "destroy"
	EventCallback EventType = "callback"
	EventWait     EventType = "wait"
	EventRecover  EventType = "recover"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// ObjectEvent describes a lifecycle change of one object.
type ObjectEvent struct {
	EventBase
	ObjectID uint32   `json:"object_id"`
	Scope    Scope    `json:"scope"`
	Owner    DomainID `json:"owner"`
	Status   Status   `json:"status"`
	Merged   bool     `json:"merged,omitempty"`
}

// CallbackOutcome is how a callback registration ended.
type CallbackOutcome string

const (
	CallbackSignaled  CallbackOutcome = "signaled"
	CallbackTimedOut  CallbackOutcome = "timeout"
	CallbackPanicked  CallbackOutcome = "panic"
	CallbackCancelled CallbackOutcome = "cancelled"
)

// CallbackEvent describes a fired or cancelled callback registration.
type CallbackEvent struct {
	EventBase
	ObjectID uint32          `json:"object_id"`
	Token    uint64          `json:"token"`
	Outcome  CallbackOutcome `json:"outcome"`
}

// WaitEvent describes a finished blocking wait.
type WaitEvent struct {
	EventBase
	ObjectID uint32        `json:"object_id"`
	Status   Status        `json:"status"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RecoveryEvent describes a recovery sweep for a reset domain.
type RecoveryEvent struct {
	EventBase
	Domain    DomainID `json:"domain"`
	Local     int      `json:"local"`
	Directory int      `json:"directory"`
}

// Hooks defines callbacks for object store observability.
// Nil fields are skipped.
type Hooks struct {
	OnCreate   func(context.Context, *ObjectEvent)
	OnSignal   func(context.Context, *ObjectEvent)
	OnDestroy  func(context.Context, *ObjectEvent)
	OnCallback func(context.Context, *CallbackEvent)
	OnWait     func(context.Context, *WaitEvent)
	OnRecover  func(context.Context, *RecoveryEvent)
}

// CallbackResult is delivered to a registered callback exactly once.
type CallbackResult struct {
	Token  uint64
	Handle Handle
	Status Status
	// TimedOut is set when the registration expired before the object signaled.
	// Status then holds the state observed at expiry.
	TimedOut bool
}

// Callback is an asynchronous completion callback. It must not block or call
// back into the service.
type Callback func(CallbackResult)
