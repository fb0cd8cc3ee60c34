package bus

import "testing"

func TestSubscribePublish(t *testing.T) {
	b := New()

	var received []Event
	b.Subscribe(func(ev Event) {
		received = append(received, ev)
	})

	b.Publish(Event{Action: ActionSendMessage, Text: "oi"})
	b.Publish(Event{Action: ActionNavigate, Page: "settings"})

	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}

	if received[0].Action != ActionSendMessage || received[0].Text != "oi" {
		t.Errorf("unexpected first event: %+v", received[0])
	}

	if received[1].Page != "settings" {
		t.Errorf("unexpected second event: %+v", received[1])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	unsubscribe := b.Subscribe(func(Event) { count++ })

	b.Publish(Event{Action: ActionClearChat})
	unsubscribe()
	b.Publish(Event{Action: ActionClearChat})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}

	// Unsubscribing twice must be harmless
	unsubscribe()
}

func TestDeliveryOrderFollowsSubscription(t *testing.T) {
	b := New()

	var order []int
	b.Subscribe(func(Event) { order = append(order, 1) })
	b.Subscribe(func(Event) { order = append(order, 2) })
	b.Subscribe(func(Event) { order = append(order, 3) })

	b.Publish(Event{Action: ActionSpeak})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected delivery order [1 2 3], got %v", order)
	}
}
