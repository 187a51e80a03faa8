package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/config"
)

func TestServeAndWait_StopsOnCancel(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), &config.ServerConfig{Host: "127.0.0.1", Port: 0})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ServeAndWait(ctx, zap.NewNop(), srv, time.Second) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ServeAndWait did not return after cancel")
	}
}

func TestServeAndWait_NilServer(t *testing.T) {
	if err := ServeAndWait(context.Background(), zap.NewNop(), nil, 0); err == nil {
		t.Fatalf("expected error for nil server")
	}
}
