//go:build linux

package services

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// i2cRelayDriver drives an eight-channel relay board whose channel states are one
// bitmask register.
type i2cRelayDriver struct {
	bus      int
	address  uint16
	register uint8

	mu   sync.Mutex
	fd   int
	mask byte
	open bool
}

func newI2CRelayDriver(bus int, address uint16, register uint8) RelayDriver {
	return &i2cRelayDriver{bus: bus, address: address, register: register, fd: -1}
}

func (d *i2cRelayDriver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := fmt.Sprintf("/dev/i2c-%d", d.bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(d.address)); err != nil {
		unix.Close(fd)
		return fmt.Errorf("select device 0x%02x on %s: %w", d.address, path, err)
	}

	d.fd = fd
	d.open = true
	d.mask = 0
	return d.writeLocked()
}

func (d *i2cRelayDriver) Set(channel int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return fmt.Errorf("i2c bus %d not open", d.bus)
	}
	mask, err := relayMask(d.mask, channel, on)
	if err != nil {
		return err
	}
	previous := d.mask
	d.mask = mask
	if err := d.writeLocked(); err != nil {
		d.mask = previous
		return err
	}
	return nil
}

func (d *i2cRelayDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	return unix.Close(d.fd)
}

func (d *i2cRelayDriver) writeLocked() error {
	n, err := unix.Write(d.fd, []byte{d.register, d.mask})
	if err != nil {
		return fmt.Errorf("write relay register: %w", err)
	}
	if n != 2 {
		return fmt.Errorf("short write to relay register: %d bytes", n)
	}
	return nil
}
