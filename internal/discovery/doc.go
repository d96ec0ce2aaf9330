// Package discovery resolves hardware identifiers to serial device paths
// and watches for serial adapters being plugged back in.
//
// An identifier is either a literal device path or a USB serial number. Serial
// numbers are matched against the udev sysfs tree and against the
// /dev/serial/by-id links.
package discovery
