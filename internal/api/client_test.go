package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMessagesSince(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id":"s1","conversation_id":"c1","content":"hello","timestamp":1000},
			{"id":"s2","conversation_id":"c1","content":"world","timestamp":2000}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", nil)
	msgs, err := c.MessagesSince(context.Background(), 500)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/messages/sync?since=500" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q, want bearer token", gotAuth)
	}
	if len(msgs) != 2 || msgs[0].ID != "s1" || msgs[1].Content != "world" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestConversationsSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/sync" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversations":[{"id":"c1","title":"Team","participants":["alice","bob"]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	convos, err := c.ConversationsSince(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convos) != 1 || convos[0].Title != "Team" || len(convos[0].Participants) != 2 {
		t.Errorf("convos = %+v", convos)
	}
}

func TestNon2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", nil)
	_, err := c.MessagesSince(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want the status code included", err)
	}
}

func TestMalformedBodyIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages": [`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	if _, err := c.MessagesSince(context.Background(), 0); err == nil {
		t.Fatal("expected decode error")
	}
}
