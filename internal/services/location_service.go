package services

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// LocationDriver produces position fixes. Start launches whatever worker the driver needs
// and calls report for each fix; Stop ends that worker and waits for it.
type LocationDriver interface {
	Start(report func(chairtypes.Position)) error
	Stop() error
}

// LocationState is published by the location service.
type LocationState struct {
	Fix    *state.Cell[chairtypes.Position]
	HasFix *state.Cell[bool]
	Online *state.Cell[bool]
}

// LocationService tracks the chair's position.
type LocationService struct {
	k      *kernel.Kernel
	driver LocationDriver
	logger *log.Logger

	fix    *state.Writer[chairtypes.Position]
	hasFix *state.Writer[bool]
	online *state.Writer[bool]
	st     *LocationState
}

// NewLocationService builds the location service. Dev reports the profile's home position;
// the embedded modes read NMEA sentences from a GPS receiver. A receiver that cannot be
// opened leaves the service offline.
func NewLocationService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*LocationService, *LocationState, error) {
	var driver LocationDriver
	switch mode {
	case chairtypes.RunModeDev:
		driver = &simulatedLocationDriver{home: p.Location.Home}
	case chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if p.Location.Device == "" {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceLocation, "location.device is required")
		}
		device, baud := p.Location.Device, p.Location.Baud
		driver = newNMEADriver(func() (io.ReadCloser, error) { return openSerial(device, baud) })
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceLocation, "no location driver for run mode %s", mode)
	}

	svc, st := newLocationService(k, driver)
	svc.start()
	return svc, st, nil
}

func newLocationService(k *kernel.Kernel, driver LocationDriver) (*LocationService, *LocationState) {
	fixCell, fixWriter := state.New(chairtypes.Position{})
	hasFixCell, hasFixWriter := state.New(false)
	onlineCell, onlineWriter := state.New(true)

	st := &LocationState{Fix: fixCell, HasFix: hasFixCell, Online: onlineCell}
	svc := &LocationService{
		k:      k,
		driver: driver,
		logger: logger.NewStyledLogger("Location"),
		fix:    fixWriter,
		hasFix: hasFixWriter,
		online: onlineWriter,
		st:     st,
	}
	return svc, st
}

func (l *LocationService) start() {
	if err := l.driver.Start(l.report); err != nil {
		l.logger.Warn("GPS receiver unavailable, location offline", "error", err)
		l.online.Set(false)
	}
}

func (l *LocationService) report(pos chairtypes.Position) {
	l.fix.Set(pos)
	if !l.st.HasFix.Get() {
		l.logger.Info("Position fix acquired", "lat", pos.Lat, "lon", pos.Lon)
		l.hasFix.Set(true)
	}
}

// ID returns the service identifier.
func (l *LocationService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceLocation
}

// State returns the published state.
func (l *LocationService) State() *LocationState {
	return l.st
}

// Position returns the latest fix and whether there has been one.
func (l *LocationService) Position() (chairtypes.Position, bool) {
	return l.st.Fix.Get(), l.st.HasFix.Get()
}

// Terminate stops the driver's worker.
func (l *LocationService) Terminate() error {
	if !l.st.Online.Get() {
		return nil
	}
	return l.driver.Stop()
}

type simulatedLocationDriver struct {
	home chairtypes.Position
}

func (s *simulatedLocationDriver) Start(report func(chairtypes.Position)) error {
	report(s.home)
	return nil
}

func (s *simulatedLocationDriver) Stop() error {
	return nil
}

// nmeaDriver reads NMEA sentences line by line on a worker goroutine.
type nmeaDriver struct {
	open   func() (io.ReadCloser, error)
	logger *log.Logger

	mu   sync.Mutex
	rc   io.ReadCloser
	done chan struct{}
}

func newNMEADriver(open func() (io.ReadCloser, error)) *nmeaDriver {
	return &nmeaDriver{open: open, logger: logger.NewStyledLogger("Location")}
}

func (d *nmeaDriver) Start(report func(chairtypes.Position)) error {
	rc, err := d.open()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.rc = rc
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.read(rc, report)
	return nil
}

func (d *nmeaDriver) read(rc io.Reader, report func(chairtypes.Position)) {
	defer close(d.done)

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		pos, ok, err := parseFix(scanner.Text())
		if err != nil {
			d.logger.Debug("Skipping NMEA sentence", "error", err)
			continue
		}
		if ok {
			report(pos)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		d.logger.Warn("GPS receiver read failed", "error", err)
	}
}

func (d *nmeaDriver) Stop() error {
	d.mu.Lock()
	rc, done := d.rc, d.done
	d.rc = nil
	d.mu.Unlock()

	if rc == nil {
		return nil
	}
	err := rc.Close()
	<-done
	return err
}

// parseFix extracts a position from a GGA or RMC sentence. ok is false for other
// sentence types and for sentences that report no valid fix.
func parseFix(line string) (pos chairtypes.Position, ok bool, err error) {
	if line == "" {
		return pos, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return pos, false, err
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return pos, false, nil
		}
		return chairtypes.Position{Lat: s.Latitude, Lon: s.Longitude}, true, nil
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return pos, false, nil
		}
		return chairtypes.Position{Lat: s.Latitude, Lon: s.Longitude}, true, nil
	default:
		return pos, false, nil
	}
}
