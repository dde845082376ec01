package game

import (
	"sync"
	"time"
)

// EventType indicates the category of a match event.
type EventType string

const (
	// Lifecycle events
	EventMatchCreated  EventType = "MATCH_CREATED"
	EventPlayerJoined  EventType = "PLAYER_JOINED"
	EventMatchStarted  EventType = "MATCH_STARTED"
	EventMatchFinished EventType = "MATCH_FINISHED"
	EventMatchAborted  EventType = "MATCH_ABORTED"

	// Turn events
	EventTurnStarted   EventType = "TURN_STARTED"
	EventTilePlaced    EventType = "TILE_PLACED"
	EventTileBurned    EventType = "TILE_BURNED"
	EventIntentUpdated EventType = "INTENT_UPDATED"
	EventIntentCleared EventType = "INTENT_CLEARED"

	// Scoring events
	EventGroupScored    EventType = "GROUP_SCORED"
	EventMeeplePlaced   EventType = "MEEPLE_PLACED"
	EventMeepleReturned EventType = "MEEPLE_RETURNED"

	// Parallel round events
	EventRoundOpened      EventType = "ROUND_OPENED"
	EventTilePicked       EventType = "TILE_PICKED"
	EventIntentLocked     EventType = "INTENT_LOCKED"
	EventConflictDetected EventType = "CONFLICT_DETECTED"
	EventConflictResolved EventType = "CONFLICT_RESOLVED"
	EventRoundCommitted   EventType = "ROUND_COMMITTED"
	EventMeepleConfirmed  EventType = "MEEPLE_CONFIRMED"
)

// Event records a state change that subscribers may react to. Fields
// beyond Type and MatchID are filled as far as they apply.
type Event struct {
	Type      EventType
	MatchID   string
	Player    int // acting player number, 0 when none
	TileID    string
	X, Y      int
	Rotation  int
	GroupKey  string
	Points    int
	Data      string // feature id, resolve action or free text
	Timestamp time.Time
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation
// with type filtering. Callbacks run on the publisher's goroutine, so
// they must not call back into the engine.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	listener := TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	}
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], listener)
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered for all events or for a single type.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}

	if typedListeners, ok := bus.typedListeners[event.Type]; ok {
		for _, listener := range typedListeners {
			listener.Callback(event)
		}
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, matchID string, player int) Event {
	return Event{
		Type:      eventType,
		MatchID:   matchID,
		Player:    player,
		Timestamp: time.Now(),
	}
}
