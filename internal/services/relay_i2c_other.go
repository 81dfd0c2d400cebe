//go:build !linux

package services

import "errors"

type unsupportedRelayDriver struct{}

func newI2CRelayDriver(int, uint16, uint8) RelayDriver {
	return unsupportedRelayDriver{}
}

func (unsupportedRelayDriver) Init() error {
	return errors.New("i2c relay boards are only supported on linux")
}

func (unsupportedRelayDriver) Set(int, bool) error { return errors.New("i2c relay board not available") }
func (unsupportedRelayDriver) Close() error       { return nil }
