package channel

import (
	"testing"

	"chatsyncd/internal/bus"
)

func TestMachineTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		valid    bool
	}{
		{Closed, Connecting, true},
		{Closed, Reconnecting, true},
		{Closed, Open, false},
		{Connecting, Open, true},
		{Connecting, Reconnecting, true},
		{Connecting, Closed, true},
		{Open, Closed, true},
		{Open, Connecting, false},
		{Open, Reconnecting, false},
		{Reconnecting, Connecting, true},
		{Reconnecting, Closed, true},
		{Reconnecting, Open, false},
	}

	for _, c := range cases {
		m := NewMachine(nil)
		m.current = c.from
		err := m.Transition(c.to)
		if c.valid && err != nil {
			t.Errorf("%s to %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.valid && err == nil {
			t.Errorf("%s to %s: expected error", c.from, c.to)
		}
	}
}

func TestMachinePublishesLifecycleEvents(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("channel.", 8)
	defer cancel()

	m := NewMachine(b)
	steps := []struct {
		to   State
		kind string
	}{
		{Connecting, "channel.state_changed"},
		{Open, "channel.open"},
		{Closed, "channel.closed"},
		{Reconnecting, "channel.state_changed"},
	}

	for _, s := range steps {
		if err := m.Transition(s.to); err != nil {
			t.Fatalf("transition to %s: %v", s.to, err)
		}
		select {
		case evt := <-ch:
			if evt.Kind != s.kind {
				t.Errorf("entering %s published %q, want %q", s.to, evt.Kind, s.kind)
			}
			change, ok := evt.Payload.(StateChange)
			if !ok || change.To != s.to {
				t.Errorf("payload = %v, want To=%s", evt.Payload, s.to)
			}
		default:
			t.Fatalf("no event for transition to %s", s.to)
		}
	}
}

func TestMachineInvalidTransitionPublishesNothing(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("channel.", 8)
	defer cancel()

	m := NewMachine(b)
	if err := m.Transition(Open); err == nil {
		t.Fatal("Closed to Open should be rejected")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %q for rejected transition", evt.Kind)
	default:
	}
}
