//go:build !linux

package serialport

import "errors"

func openTTY(string, int) (conn, error) {
	return nil, errors.New("serial ports are only supported on linux")
}
