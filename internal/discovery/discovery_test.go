package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"hipot/internal/station"
)

func newTestResolver(t *testing.T, crawled []Port, links map[string]string) *Resolver {
	t.Helper()
	base := t.TempDir()
	devDir := filepath.Join(base, "dev")
	byID := filepath.Join(devDir, "serial", "by-id")
	if err := os.MkdirAll(byID, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, target := range links {
		targetPath := filepath.Join(devDir, target)
		if err := os.WriteFile(targetPath, nil, 0o644); err != nil {
			t.Fatalf("write device: %v", err)
		}
		if err := os.Symlink(targetPath, filepath.Join(byID, name)); err != nil {
			t.Fatalf("symlink: %v", err)
		}
	}
	for idx := range crawled {
		crawled[idx].Path = filepath.Join(devDir, crawled[idx].Path)
	}
	r := &Resolver{devDir: devDir, byIDDir: byID}
	r.crawl = func(context.Context) ([]Port, error) { return crawled, nil }
	return r
}

func TestResolveLiteralPath(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	got, err := r.Resolve(context.Background(), "/dev/ttyS0")
	if err != nil || got != "/dev/ttyS0" {
		t.Fatalf("Resolve literal: %q %v", got, err)
	}
}

func TestResolveBySysfsSerial(t *testing.T) {
	r := newTestResolver(t, []Port{
		{Path: "ttyUSB0", Serial: "AQ03JGPEA"},
		{Path: "ttyUSB1", Serial: "B0007EEKA"},
	}, nil)
	got, err := r.Resolve(context.Background(), "B0007EEKA")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(got) != "ttyUSB1" {
		t.Fatalf("resolved %q", got)
	}
}

func TestResolveByIDLink(t *testing.T) {
	r := newTestResolver(t, nil, map[string]string{
		"usb-FTDI_FT232R_USB_UART_B0007BEKA-if00-port0": "ttyUSB3",
	})
	got, err := r.Resolve(context.Background(), "B0007BEKA")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(got) != "ttyUSB3" {
		t.Fatalf("resolved %q", got)
	}
}

func TestResolveUnknownIdentifier(t *testing.T) {
	r := newTestResolver(t, []Port{{Path: "ttyUSB0", Serial: "AQ03JGPEA"}}, nil)
	_, err := r.Resolve(context.Background(), "MISSING")
	if !errors.Is(err, station.ErrDeviceConnect) {
		t.Fatalf("expected device connect error, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "  "); !errors.Is(err, station.ErrDeviceConnect) {
		t.Fatalf("expected error for empty identifier, got %v", err)
	}
}

func TestResolveAmbiguousIdentifier(t *testing.T) {
	r := newTestResolver(t, []Port{
		{Path: "ttyUSB0", Serial: "SAME"},
		{Path: "ttyUSB1", Serial: "SAME"},
	}, nil)
	if _, err := r.Resolve(context.Background(), "SAME"); !errors.Is(err, station.ErrDeviceConnect) {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
}

func TestPortsMergesSources(t *testing.T) {
	r := newTestResolver(t, []Port{{Path: "ttyUSB0", Serial: "AQ03JGPEA"}}, map[string]string{
		"usb-FTDI_FT232R_USB_UART_AQ03JGPEA-if00-port0": "ttyUSB0",
		"usb-Prolific_PL2303_B0007EEKA-if00-port0":      "ttyUSB1",
	})
	ports, err := r.Ports(context.Background())
	if err != nil {
		t.Fatalf("Ports: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("expected 2 ports, got %+v", ports)
	}
	if ports[0].Link == "" || ports[0].Serial != "AQ03JGPEA" {
		t.Fatalf("by-id link not merged: %+v", ports[0])
	}
	if ports[1].Serial != "B0007EEKA" {
		t.Fatalf("serial not parsed from link: %+v", ports[1])
	}
}

func TestSerialFromLinkName(t *testing.T) {
	cases := map[string]string{
		"usb-FTDI_FT232R_USB_UART_AQ03JGPEA-if00-port0": "AQ03JGPEA",
		"usb-Arduino_Uno_7543-if00":                     "7543",
		"weird":                                         "",
	}
	for in, want := range cases {
		if got := serialFromLinkName(in); got != want {
			t.Fatalf("serialFromLinkName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUSBSerialWalksUp(t *testing.T) {
	base := t.TempDir()
	usbDev := filepath.Join(base, "usb1", "1-1")
	ttyDir := filepath.Join(usbDev, "1-1:1.0", "ttyUSB0", "tty", "ttyUSB0")
	if err := os.MkdirAll(ttyDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(usbDev, "serial"), []byte("AQ03JGPEA\n"), 0o644); err != nil {
		t.Fatalf("write serial: %v", err)
	}
	if got := usbSerial(ttyDir); got != "AQ03JGPEA" {
		t.Fatalf("usbSerial = %q", got)
	}
}

func TestDevicePath(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"devname", map[string]string{"DEVNAME": "ttyUSB2"}, "/dev/ttyUSB2"},
		{"absolute devname", map[string]string{"DEVNAME": "/dev/ttyACM0"}, "/dev/ttyACM0"},
		{"devpath", map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/1-1/ttyUSB4/tty/ttyUSB4"}, "/dev/ttyUSB4"},
		{"empty", map[string]string{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := devicePath(netlink.UEvent{Env: tc.env}); got != tc.want {
				t.Fatalf("devicePath = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMonitorHandlesAddEvents(t *testing.T) {
	var seen []string
	m := NewMonitor(nil, func(_ context.Context, path string) { seen = append(seen, path) })
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyUSB1"}})
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	if len(seen) != 1 || seen[0] != "/dev/ttyUSB1" {
		t.Fatalf("handler calls %v", seen)
	}
	if m.Running() {
		t.Fatal("unstarted monitor reports running")
	}
	var nilMonitor *Monitor
	nilMonitor.Stop()
	if nilMonitor.Running() {
		t.Fatal("nil monitor reports running")
	}
}
