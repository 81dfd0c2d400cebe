//go:build !linux

package services

import (
	"io"
	"os"
)

// openSerial opens device with the line settings left as the OS configured them.
func openSerial(device string, _ int) (io.ReadCloser, error) {
	return os.Open(device)
}
