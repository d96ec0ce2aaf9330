package station_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"hipot/internal/station"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := station.Wrap(station.ErrDevice, "switch", "disable all", "write failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, station.ErrDevice) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"switch", "disable all", "write failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := station.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, station.ErrDevice) {
		t.Fatalf("expected default device marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "station failure") {
		t.Fatalf("expected fallback detail, got %q", err)
	}
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{station.Wrap(station.ErrTimeout, "completion", "poll", "", nil), "timeout"},
		{station.Wrap(station.ErrDeviceConnect, "serial", "open", "", nil), "device_connect"},
		{fmt.Errorf("outer: %w", station.ErrInvalidCavity), "invalid_cavity"},
		{station.Wrap(station.ErrProtocol, "laser", "ready", "", nil), "protocol"},
		{errors.New("plain"), "error"},
	}
	for _, tt := range tests {
		if got := station.Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
