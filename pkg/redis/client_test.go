package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewClientPings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	c, err := NewClient(context.Background(), mr.Addr(), "", 0, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := NewClient(context.Background(), addr, "", 0, nil); err == nil {
		t.Fatalf("expected ping error")
	}
}
