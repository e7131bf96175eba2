// Package event implements the lifecycle event publisher (§4.H): a
// synchronous, in-process, at-most-once fan-out of PatientEvent values to
// subscribers registered in-process. There is no wire transport, no
// retry, and no durable buffer — a durable outbox is a permitted future
// extension, not a requirement this package meets.
//
// The fan-out/failure-isolation shape (iterate subscribers, capture each
// one's error, never let one subscriber's failure stop delivery to the
// rest) mirrors the webhook delivery loop this package's author has used
// elsewhere for HTTP endpoint fan-out; here the "endpoint" is simply a
// Go function running in the publishing goroutine.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind discriminates the PatientEvent variants.
type Kind string

const (
	KindCreated  Kind = "created"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
	KindMerged   Kind = "merged"
	KindLinked   Kind = "linked"
	KindUnlinked Kind = "unlinked"
)

// Patient is the minimal patient projection an event carries; the event
// publisher does not depend on the full aggregate type so it stays free
// of an import cycle with the store package.
type Patient struct {
	ID uuid.UUID
}

// PatientEvent is the transient, on-the-wire-only variant described by
// §3. It is never persisted by the core; the audit stream is the store of
// record for history.
type PatientEvent struct {
	Kind      Kind
	Timestamp time.Time

	Patient *Patient   // Created, Updated
	ID      uuid.UUID  // Deleted
	Src     uuid.UUID  // Merged.src, Linked/Unlinked.a
	Dst     uuid.UUID  // Merged.dst, Linked/Unlinked.b
}

// Created builds a Created variant.
func Created(p *Patient, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindCreated, Timestamp: ts, Patient: p}
}

// Updated builds an Updated variant.
func Updated(p *Patient, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindUpdated, Timestamp: ts, Patient: p}
}

// Deleted builds a Deleted variant.
func Deleted(id uuid.UUID, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindDeleted, Timestamp: ts, ID: id}
}

// Merged builds a Merged variant.
func Merged(src, dst uuid.UUID, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindMerged, Timestamp: ts, Src: src, Dst: dst}
}

// Linked builds a Linked variant.
func Linked(a, b uuid.UUID, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindLinked, Timestamp: ts, Src: a, Dst: b}
}

// Unlinked builds an Unlinked variant.
func Unlinked(a, b uuid.UUID, ts time.Time) PatientEvent {
	return PatientEvent{Kind: KindUnlinked, Timestamp: ts, Src: a, Dst: b}
}

// Subscriber receives published events. A returned error is captured and
// logged; it never aborts delivery to subscribers registered after this
// one.
type Subscriber func(PatientEvent) error

// Publisher fans a published event out to every registered subscriber, in
// registration order, synchronously on the publishing goroutine.
type Publisher struct {
	mu          sync.Mutex
	subscribers []namedSubscriber
	logger      zerolog.Logger
}

type namedSubscriber struct {
	name string
	fn   Subscriber
}

// New constructs an empty Publisher.
func New(logger zerolog.Logger) *Publisher {
	return &Publisher{logger: logger}
}

// Subscribe registers fn under name (used only for log attribution) to
// receive every subsequently published event. Subscribe is safe to call
// concurrently with Publish.
func (p *Publisher) Subscribe(name string, fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, namedSubscriber{name: name, fn: fn})
}

// Publish delivers evt to every registered subscriber in registration
// order. A subscriber's error is logged and does not prevent delivery to
// the remaining subscribers; Publish itself never returns an error,
// matching the at-most-once, best-effort contract of §4.H.
func (p *Publisher) Publish(evt PatientEvent) {
	p.mu.Lock()
	subs := make([]namedSubscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.mu.Unlock()

	for _, s := range subs {
		if err := s.fn(evt); err != nil {
			p.logger.Warn().
				Str("subscriber", s.name).
				Str("event_kind", string(evt.Kind)).
				Err(err).
				Msg("event subscriber failed")
		}
	}
}
