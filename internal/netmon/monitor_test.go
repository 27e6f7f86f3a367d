package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsyncd/internal/bus"
)

func collectKinds(ch <-chan bus.Event) []string {
	var kinds []string
	for {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		default:
			return kinds
		}
	}
}

func TestSetReachablePublishesOnlyOnChange(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("net.", 16)
	defer cancel()

	m := New("", b, nil)

	m.SetReachable(true)
	m.SetReachable(true) // no change, no event
	m.SetReachable(false)
	m.SetReachable(false)
	m.SetReachable(true)

	want := []string{"net.up", "net.down", "net.up"}
	got := collectKinds(ch)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFirstSignalAlwaysPublishes(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("net.", 4)
	defer cancel()

	// Even a first "down" must publish: subscribers start with no assumption.
	m := New("", b, nil)
	m.SetReachable(false)

	got := collectKinds(ch)
	if len(got) != 1 || got[0] != "net.down" {
		t.Errorf("events = %v, want [net.down]", got)
	}
}

func TestReachableGetter(t *testing.T) {
	m := New("", bus.New(), nil)
	if m.Reachable() {
		t.Error("fresh monitor should report unreachable")
	}
	m.SetReachable(true)
	if !m.Reachable() {
		t.Error("monitor should report reachable after signal")
	}
}

func TestProbePublishesInitialState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %q, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New()
	ch, cancel := b.Subscribe("net.", 4)
	defer cancel()

	m := New(srv.URL, b, nil)
	m.Start(context.Background())
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case evt := <-ch:
			if evt.Kind != "net.up" {
				t.Errorf("kind = %q, want net.up", evt.Kind)
			}
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("no initial net event from probe")
}

func TestProbeServerErrorMeansUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := New(srv.URL, bus.New(), nil)
	if m.probe(context.Background()) {
		t.Error("5xx probe should be unreachable")
	}
}

func TestProbeClientErrorStillReachable(t *testing.T) {
	// 4xx means the server answered; the network is up even if the request
	// itself is wrong.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := New(srv.URL, bus.New(), nil)
	if !m.probe(context.Background()) {
		t.Error("4xx probe should count as reachable")
	}
}
