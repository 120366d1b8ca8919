// Package event provides a pub/sub event system for sysgate using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	PermissionRequired  EventType = "permission.required"
	PermissionResolved  EventType = "permission.resolved"
	PermissionGranted   EventType = "permission.granted"
	PermissionRevoked   EventType = "permission.revoked"
	ProcessStarted      EventType = "process.started"
	ProcessExited       EventType = "process.exited"
	ProcessKilled       EventType = "process.killed"
	OperationRecorded   EventType = "operation.recorded"
	OperationRolledBack EventType = "operation.rolledback"
	ElevationRequested  EventType = "elevation.requested"
)

// eventsTopic is the single gochannel topic all async events flow through.
const eventsTopic = "sysgate.events"

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// envelope is the wire form of an Event on the gochannel topic.
type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// payloadDecoders maps each event type to its concrete payload type, so
// events coming off the topic carry the same Data type they were
// published with.
var payloadDecoders = map[EventType]func([]byte) (any, error){
	PermissionRequired:  decodeAs[PermissionRequiredData],
	PermissionResolved:  decodeAs[PermissionResolvedData],
	PermissionGranted:   decodeAs[PermissionGrantedData],
	PermissionRevoked:   decodeAs[PermissionRevokedData],
	ProcessStarted:      decodeAs[ProcessData],
	ProcessExited:       decodeAs[ProcessData],
	ProcessKilled:       decodeAs[ProcessData],
	OperationRecorded:   decodeAs[OperationData],
	OperationRolledBack: decodeAs[OperationData],
	ElevationRequested:  decodeAs[ElevationRequestedData],
}

func decodeAs[T any](raw []byte) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the event bus that manages pub/sub using watermill. Async
// publishes flow through a gochannel topic and are delivered in FIFO
// order by a single dispatch goroutine; PublishSync delivers in the
// caller's goroutine.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

// globalBus is the default event bus instance.
var globalBus = newBus()

// newBus creates a new event bus with watermill infrastructure.
func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}

	// The subscription exists before any Publish, so nothing is dropped.
	msgs, err := b.pubsub.Subscribe(ctx, eventsTopic)
	if err != nil {
		// gochannel only refuses subscriptions after Close.
		panic(err)
	}
	go b.dispatch(msgs)

	return b
}

// dispatch drains the gochannel subscription and fans events out to
// registered subscribers. It exits when the bus is closed.
func (b *Bus) dispatch(msgs <-chan *message.Message) {
	for msg := range msgs {
		evt, err := decodeEvent(msg.Payload)
		msg.Ack()
		if err != nil {
			continue
		}
		for _, sub := range b.snapshot(evt.Type) {
			sub(evt)
		}
	}
}

// decodeEvent rebuilds a typed Event from its wire envelope.
func decodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, err
	}

	evt := Event{Type: env.Type}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return evt, nil
	}

	decode, ok := payloadDecoders[env.Type]
	if !ok {
		// Unknown types keep the raw payload rather than being dropped.
		evt.Data = env.Data
		return evt, nil
	}
	data, err := decode(env.Data)
	if err != nil {
		return Event{}, err
	}
	evt.Data = data
	return evt, nil
}

// snapshot copies the matching subscribers under the read lock.
func (b *Bus) snapshot(eventType EventType) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[eventType])+len(b.global))
	for _, entry := range b.subscribers[eventType] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.subscribers[eventType] = append(b.subscribers[eventType], entry)

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.global = append(b.global, entry)

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// unsubscribeGlobal removes a global subscriber.
func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish sends an event to subscribers asynchronously through the
// gochannel topic. Events are delivered in publish order.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(envelope{Type: event.Type, Data: rawPayload(event.Data)})
	if err != nil {
		return
	}
	_ = b.pubsub.Publish(eventsTopic, message.NewMessage(watermill.NewUUID(), payload))
}

// rawPayload marshals data for the envelope, degrading to null when the
// payload cannot be serialized.
func rawPayload(data any) json.RawMessage {
	if data == nil {
		return json.RawMessage("null")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

// PublishSync sends an event to all subscribers synchronously.
// All subscribers are called in the current goroutine before returning.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.snapshot(event.Type) {
		sub(event)
	}
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// Reset clears all subscribers from the global bus (for testing).
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()

	// Small delay to allow goroutines to clean up
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()

	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
