package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServer(t *testing.T) {
	server := NewServer(":8080", http.NotFoundHandler())

	if server == nil {
		t.Fatal("expected server to be created")
	}

	if server.Addr() != ":8080" {
		t.Errorf("expected addr :8080, got %s", server.Addr())
	}

	if server.httpServer == nil {
		t.Fatal("expected httpServer to be initialized")
	}

	if server.httpServer.ReadHeaderTimeout == 0 {
		t.Error("expected ReadHeaderTimeout to be set")
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	server := NewServer(ln.Addr().String(), newTestRouter(t, nil))

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("serve returned error after shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("serve did not return after shutdown")
	}
}

func TestServerStartInvalidAddr(t *testing.T) {
	server := NewServer("127.0.0.1:-1", http.NotFoundHandler())

	if err := server.Start(); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestServerShutdownNilServer(t *testing.T) {
	server := &Server{}

	ctx := context.Background()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("expected nil error for nil httpServer, got: %v", err)
	}
}
