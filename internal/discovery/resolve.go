package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"

	"hipot/internal/station"
)

const (
	defaultDevDir  = "/dev"
	defaultByIDDir = "/dev/serial/by-id"
	ttyPattern     = `tty(USB|ACM)[0-9]+`
)

// Port is one serial device candidate.
type Port struct {
	Path    string `json:"path" yaml:"path"`
	Serial  string `json:"serial,omitempty" yaml:"serial,omitempty"`
	Link    string `json:"link,omitempty" yaml:"link,omitempty"`
	SysPath string `json:"sys_path,omitempty" yaml:"sys_path,omitempty"`
}

// Resolver maps identifiers to device paths.
type Resolver struct {
	devDir  string
	byIDDir string
	crawl   func(ctx context.Context) ([]Port, error)
}

// NewResolver returns a resolver over the live udev tree.
func NewResolver() *Resolver {
	r := &Resolver{devDir: defaultDevDir, byIDDir: defaultByIDDir}
	r.crawl = r.crawlSysfs
	return r
}

// Ports lists serial adapters found through udev and /dev/serial/by-id,
// sorted by path.
func (r *Resolver) Ports(ctx context.Context) ([]Port, error) {
	byPath := make(map[string]Port)

	crawled, crawlErr := r.crawl(ctx)
	for _, p := range crawled {
		byPath[p.Path] = p
	}

	links, linkErr := r.byIDLinks()
	for _, p := range links {
		existing, ok := byPath[p.Path]
		if !ok {
			byPath[p.Path] = p
			continue
		}
		existing.Link = p.Link
		if existing.Serial == "" {
			existing.Serial = p.Serial
		}
		byPath[p.Path] = existing
	}

	if len(byPath) == 0 && crawlErr != nil {
		return nil, crawlErr
	}
	if len(byPath) == 0 && linkErr != nil {
		return nil, linkErr
	}

	out := make([]Port, 0, len(byPath))
	for _, p := range byPath {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Resolve returns the device path for identifier. A path starting with "/"
// is returned unchanged. Unmatched identifiers are tagged
// station.ErrDeviceConnect.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", station.Wrap(station.ErrDeviceConnect, "discovery", "resolve", "empty identifier", nil)
	}
	if strings.HasPrefix(identifier, "/") {
		return identifier, nil
	}

	ports, err := r.Ports(ctx)
	if err != nil {
		return "", station.Wrap(station.ErrDeviceConnect, "discovery", identifier, "list serial devices", err)
	}
	var matches []string
	for _, p := range ports {
		if p.Serial == identifier || (p.Link != "" && strings.Contains(filepath.Base(p.Link), identifier)) {
			matches = append(matches, p.Path)
		}
	}
	switch len(matches) {
	case 0:
		return "", station.Wrap(station.ErrDeviceConnect, "discovery", identifier, "no serial device matches", nil)
	case 1:
		return matches[0], nil
	default:
		return "", station.Wrap(station.ErrDeviceConnect, "discovery", identifier,
			fmt.Sprintf("identifier matches %d devices (%s)", len(matches), strings.Join(matches, ", ")), nil)
	}
}

func (r *Resolver) byIDLinks() ([]Port, error) {
	entries, err := os.ReadDir(r.byIDDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", r.byIDDir, err)
	}
	var out []Port
	for _, entry := range entries {
		link := filepath.Join(r.byIDDir, entry.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		out = append(out, Port{Path: target, Link: link, Serial: serialFromLinkName(entry.Name())})
	}
	return out, nil
}

// serialFromLinkName extracts the serial from names like
// usb-FTDI_FT232R_USB_UART_AQ03JGPEA-if00-port0.
func serialFromLinkName(name string) string {
	name = strings.TrimPrefix(name, "usb-")
	if idx := strings.Index(name, "-if"); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		return name[idx+1:]
	}
	return ""
}

func (r *Resolver) crawlSysfs(ctx context.Context) ([]Port, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, ttyMatcher())

	var out []Port
	for {
		select {
		case <-ctx.Done():
			close(quit)
			return out, ctx.Err()
		case dev, ok := <-queue:
			if !ok {
				select {
				case err := <-errs:
					return out, err
				default:
					return out, nil
				}
			}
			devname := dev.Env["DEVNAME"]
			if devname == "" {
				continue
			}
			out = append(out, Port{
				Path:    filepath.Join(r.devDir, filepath.Base(devname)),
				Serial:  usbSerial(dev.KObj),
				SysPath: dev.KObj,
			})
		}
	}
}

func ttyMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"DEVNAME": ttyPattern},
	})
	return rules
}

// usbSerial walks up from a sysfs device directory to the USB device that
// carries a serial attribute.
func usbSerial(sysPath string) string {
	dir := sysPath
	for dir != "" && dir != "/" && dir != "." {
		data, err := os.ReadFile(filepath.Join(dir, "serial"))
		if err == nil {
			return strings.TrimSpace(string(data))
		}
		dir = filepath.Dir(dir)
	}
	return ""
}
