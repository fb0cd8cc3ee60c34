package bus

import "sync"

// Action names carried by bus events.
const (
	ActionCommandExecuted    = "command_executed"
	ActionSendMessage        = "send_message"
	ActionNewConversation    = "new_conversation"
	ActionClearChat          = "clear_chat"
	ActionToggleRecording    = "toggle_recording"
	ActionNavigate           = "navigate"
	ActionSelectConversation = "select_conversation"
	ActionAdjustSetting      = "adjust_setting"
	ActionSpeak              = "speak"
)

// Event is the typed message exchanged between the voice-command layer
// and the application shell. Only the fields relevant to the action are
// populated.
type Event struct {
	Action         string `json:"action"`
	Text           string `json:"text,omitempty"`
	Page           string `json:"page,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Setting        string `json:"setting,omitempty"`
	Value          string `json:"value,omitempty"`
}

// Handler receives published events
type Handler func(Event)

// Bus is an in-process observer list replacing the implicit global
// event surface of a DOM-style bus. Handlers run synchronously on the
// publisher's goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	order    []int
	next     int
}

// New creates an empty bus
func New() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a function that removes it
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all current subscribers
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
