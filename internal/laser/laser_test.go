package laser_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"hipot/internal/laser"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

type fakeMarker struct {
	ln      net.Listener
	replies map[string]string

	mu       sync.Mutex
	received []string
}

func startFakeMarker(t *testing.T, replies map[string]string) *fakeMarker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &fakeMarker{ln: ln, replies: replies}
	t.Cleanup(func() { _ = ln.Close() })
	go m.serve()
	return m
}

func (m *fakeMarker) serve() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		go m.handle(conn)
	}
}

func (m *fakeMarker) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\r')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\r")
		m.mu.Lock()
		m.received = append(m.received, line)
		m.mu.Unlock()
		key := line
		if strings.HasPrefix(line, "WX,PRG=") {
			key = "select"
		}
		reply, ok := m.replies[key]
		if !ok {
			continue
		}
		if _, err := conn.Write([]byte(reply + "\r")); err != nil {
			return
		}
	}
}

func (m *fakeMarker) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

func newClient(addr string) *laser.Client {
	return laser.New(laser.Options{
		Address:           addr,
		Block:             1,
		MarkingParameters: "80,1500,70",
		Timeout:           500 * time.Millisecond,
	}, nil)
}

func TestMarkSuccess(t *testing.T) {
	marker := startFakeMarker(t, map[string]string{
		"RX,Ready":        "RX,OK,1",
		"WX,StartMarking": "WX,OK",
	})
	client := newClient(marker.ln.Addr().String())
	defer client.Close()

	result, err := client.Mark(context.Background(), 3)
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if result.Outcome != outcome.LaserMarked {
		t.Fatalf("expected marked, got %q", result.Outcome)
	}
	if result.Response != "WX,OK" {
		t.Fatalf("unexpected response %q", result.Response)
	}

	cmds := marker.commands()
	want := []string{"RX,Ready", "WX,PRG=2,BLK=1,MarkingParameter=80,1500,70", "WX,StartMarking"}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), cmds)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("command %d: got %q want %q", i, cmds[i], want[i])
		}
	}
}

func TestMarkNotReady(t *testing.T) {
	marker := startFakeMarker(t, map[string]string{
		"RX,Ready": "RX,NG,22",
	})
	client := newClient(marker.ln.Addr().String())
	defer client.Close()

	result, err := client.Mark(context.Background(), 1)
	if !errors.Is(err, station.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if result.Outcome != outcome.LaserSkipped || result.Response != "RX,NG,22" {
		t.Fatalf("expected skipped with marker reply, got %+v", result)
	}
	if !strings.Contains(result.Reason, "RX,NG,22") {
		t.Fatalf("reason %q does not carry the reply", result.Reason)
	}
	for _, cmd := range marker.commands() {
		if cmd == "WX,StartMarking" {
			t.Fatal("marking started although marker was not ready")
		}
	}
}

func TestMarkUnreachableIsSkipped(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := newClient(addr)
	result, err := client.Mark(context.Background(), 5)
	if !errors.Is(err, station.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if result.Outcome != outcome.LaserSkipped || result.Response != laser.NotGood {
		t.Fatalf("expected skipped with NG sentinel, got %+v", result)
	}
}

func TestMarkSilentMarkerTimesOut(t *testing.T) {
	marker := startFakeMarker(t, map[string]string{})
	client := newClient(marker.ln.Addr().String())
	defer client.Close()

	start := time.Now()
	result, err := client.Mark(context.Background(), 2)
	if err == nil {
		t.Fatal("expected error from silent marker")
	}
	if result.Outcome != outcome.LaserSkipped {
		t.Fatalf("expected skipped, got %q", result.Outcome)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("read deadline not enforced")
	}
}

func TestMarkDisabledWithoutAddress(t *testing.T) {
	client := laser.New(laser.Options{}, nil)
	if client.Enabled() {
		t.Fatal("client without address should be disabled")
	}
	result, err := client.Mark(context.Background(), 1)
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if result.Outcome != outcome.LaserSkipped {
		t.Fatalf("expected skipped, got %q", result.Outcome)
	}
	if err := client.Connect(context.Background()); !errors.Is(err, station.ErrDeviceConnect) {
		t.Fatalf("expected connect error, got %v", err)
	}
}
