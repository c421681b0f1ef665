package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/feed"
	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/state"
)

func TestTailSignalsConnectedAfterHydration(t *testing.T) {
	srv := httptest.NewServer(feed.NewServer(state.New(1), hub.New(1, zerolog.Nop()), nil, zerolog.Nop()).Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	connected := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- tail(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", zerolog.Nop(), func() { connected <- struct{}{} })
	}()

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatalf("connected not signalled after initial data")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("tail did not stop after cancel")
	}
}

func TestTailDoesNotSignalOnDialFailure(t *testing.T) {
	called := false
	err := tail(context.Background(), "ws://127.0.0.1:1/ws", zerolog.Nop(), func() { called = true })
	if err == nil || called {
		t.Fatalf("expected dial error without connected signal, got %v called=%v", err, called)
	}
}
