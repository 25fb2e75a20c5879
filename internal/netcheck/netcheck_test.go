package netcheck

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialer_Online(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	d := NewDialer(time.Second, ln.Addr().String())
	if !d.Online(context.Background()) {
		t.Fatal("expected online with a listening address")
	}
}

func TestDialer_Offline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := NewDialer(500*time.Millisecond, addr)
	if d.Online(context.Background()) {
		t.Fatal("expected offline when nothing listens")
	}
}

func TestDialer_FallsBackToNextAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dead := closed.Addr().String()
	closed.Close()

	d := NewDialer(time.Second, dead, ln.Addr().String())
	if !d.Online(context.Background()) {
		t.Fatal("expected second address to be tried")
	}
}

func TestStaticAndFunc(t *testing.T) {
	if Static(false).Online(context.Background()) {
		t.Error("Static(false) reported online")
	}
	called := false
	f := Func(func(context.Context) bool { called = true; return true })
	if !f.Online(context.Background()) || !called {
		t.Error("Func not invoked")
	}
}

func TestDialer_StructLiteral(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	d := &Dialer{Addrs: []string{ln.Addr().String()}}
	if !d.Online(context.Background()) {
		t.Fatal("expected online with a listening address")
	}
}
