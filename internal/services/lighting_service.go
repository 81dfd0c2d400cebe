package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// LightingSnapshot is the controller state that StoreState captures and RestoreState reapplies.
type LightingSnapshot struct {
	On         bool `json:"on"`
	Brightness int  `json:"bri"`
	Preset     int  `json:"ps,omitempty"`
}

// LightingDriver talks to a light controller.
type LightingDriver interface {
	State(ctx context.Context) (LightingSnapshot, error)
	Apply(ctx context.Context, snap LightingSnapshot) error
}

// LightingState is published by the lighting service.
type LightingState struct {
	Online     *state.Cell[bool]
	Effect     *state.Cell[string]
	Brightness *state.Cell[int]
}

// LightingService runs named lighting effects on a WLED controller.
type LightingService struct {
	k       *kernel.Kernel
	driver  LightingDriver
	effects map[string]int
	timeout time.Duration
	logger  *log.Logger

	online     *state.Writer[bool]
	effect     *state.Writer[string]
	brightness *state.Writer[int]
	st         *LightingState

	mu     sync.Mutex
	stored *storedLighting
}

type storedLighting struct {
	snap   LightingSnapshot
	effect string
}

// NewLightingService builds the lighting service. The embedded modes require a controller
// host; dev talks to a controller when one is configured and simulates otherwise. An
// unreachable controller leaves the service offline without failing boot.
func NewLightingService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*LightingService, *LightingState, error) {
	timeout := p.Lighting.Timeout.Duration()

	var driver LightingDriver
	switch mode {
	case chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
		if p.Lighting.Host == "" {
			return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceLighting, "lighting.host is required")
		}
		driver = newWLEDDriver(p.Lighting.Host, timeout)
	case chairtypes.RunModeDev:
		if p.Lighting.Host != "" {
			driver = newWLEDDriver(p.Lighting.Host, timeout)
		} else {
			driver = &simulatedLightingDriver{}
		}
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceLighting, "no lighting driver for run mode %s", mode)
	}

	svc, st := newLightingService(k, driver, p.Lighting.Effects, p.Lighting.Brightness, timeout)
	svc.probe(newProbeBackOff(timeout))
	return svc, st, nil
}

func newLightingService(k *kernel.Kernel, driver LightingDriver, effects map[string]int, brightness int, timeout time.Duration) (*LightingService, *LightingState) {
	onlineCell, onlineWriter := state.New(true)
	effectCell, effectWriter := state.New("")
	brightnessCell, brightnessWriter := state.New(brightness)

	st := &LightingState{Online: onlineCell, Effect: effectCell, Brightness: brightnessCell}
	svc := &LightingService{
		k:          k,
		driver:     driver,
		effects:    effects,
		timeout:    timeout,
		logger:     logger.NewStyledLogger("Lighting"),
		online:     onlineWriter,
		effect:     effectWriter,
		brightness: brightnessWriter,
		st:         st,
	}
	return svc, st
}

func newProbeBackOff(timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = timeout
	return b
}

// probe checks the controller is reachable, retrying until b gives up.
func (l *LightingService) probe(b backoff.BackOff) {
	err := backoff.Retry(func() error {
		ctx, cancel := l.requestContext()
		defer cancel()
		_, err := l.driver.State(ctx)
		return err
	}, b)
	if err != nil {
		l.logger.Warn("Lighting controller unreachable, lighting offline", "error", err)
		l.online.Set(false)
		return
	}
	l.logger.Debug("Lighting controller reachable")
}

// ID returns the service identifier.
func (l *LightingService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceLighting
}

// State returns the published state.
func (l *LightingService) State() *LightingState {
	return l.st
}

// RunEffect switches the lights to the preset mapped to effect. Unknown effects are logged
// and ignored. A controller failure takes the service offline.
func (l *LightingService) RunEffect(effect string) error {
	preset, ok := l.effects[effect]
	if !ok {
		l.logger.Warn("Unknown lighting effect", "effect", effect)
		return nil
	}

	snap := LightingSnapshot{On: true, Brightness: l.st.Brightness.Get(), Preset: preset}
	if !l.apply(snap, "effect", effect) {
		return nil
	}
	l.effect.Set(effect)
	l.logger.Info("Lighting effect", "effect", effect, "preset", preset)
	return nil
}

// SetBrightness changes the brightness (0-255) without changing the effect.
func (l *LightingService) SetBrightness(brightness int) error {
	if brightness < 0 || brightness > 255 {
		return fmt.Errorf("brightness %d out of range 0-255", brightness)
	}
	if l.apply(LightingSnapshot{On: brightness > 0, Brightness: brightness}, "brightness", brightness) {
		l.brightness.Set(brightness)
	}
	return nil
}

// StoreState snapshots the controller so RestoreState can put it back later.
func (l *LightingService) StoreState() error {
	if !l.st.Online.Get() {
		l.logger.Warn("Lighting offline, nothing to store")
		return nil
	}

	ctx, cancel := l.requestContext()
	defer cancel()
	snap, err := l.driver.State(ctx)
	if err != nil {
		l.goOffline(err)
		return nil
	}

	l.mu.Lock()
	l.stored = &storedLighting{snap: snap, effect: l.st.Effect.Get()}
	l.mu.Unlock()
	l.logger.Debug("Lighting state stored", "preset", snap.Preset, "brightness", snap.Brightness)
	return nil
}

// RestoreState reapplies the last stored snapshot. Without one it logs and does nothing.
func (l *LightingService) RestoreState() error {
	l.mu.Lock()
	stored := l.stored
	l.mu.Unlock()

	if stored == nil {
		l.logger.Warn("No stored lighting state to restore")
		return nil
	}
	if l.apply(stored.snap, "restore", stored.effect) {
		l.effect.Set(stored.effect)
		l.brightness.Set(stored.snap.Brightness)
	}
	return nil
}

// Effects lists the configured effect names.
func (l *LightingService) Effects() []string {
	return slices.Sorted(maps.Keys(l.effects))
}

// Terminate has nothing to release; the controller keeps its last state.
func (l *LightingService) Terminate() error {
	return nil
}

// apply sends snap and reports whether it reached the controller.
func (l *LightingService) apply(snap LightingSnapshot, keyvals ...any) bool {
	if !l.st.Online.Get() {
		l.logger.Warn("Lighting offline, ignoring", keyvals...)
		return false
	}

	ctx, cancel := l.requestContext()
	defer cancel()
	if err := l.driver.Apply(ctx, snap); err != nil {
		l.goOffline(err)
		return false
	}
	return true
}

func (l *LightingService) goOffline(err error) {
	l.logger.Error("Lighting controller failed, lighting offline", "error", err)
	l.online.Set(false)
}

func (l *LightingService) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

// wledDriver uses the WLED JSON API.
type wledDriver struct {
	url    string
	client *http.Client
}

func newWLEDDriver(host string, timeout time.Duration) *wledDriver {
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &wledDriver{
		url:    strings.TrimRight(base, "/") + "/json/state",
		client: &http.Client{Timeout: timeout},
	}
}

func (w *wledDriver) State(ctx context.Context) (LightingSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return LightingSnapshot{}, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return LightingSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LightingSnapshot{}, fmt.Errorf("wled returned %s", resp.Status)
	}

	var snap LightingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return LightingSnapshot{}, fmt.Errorf("decoding wled state: %w", err)
	}
	return snap, nil
}

func (w *wledDriver) Apply(ctx context.Context, snap LightingSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wled returned %s", resp.Status)
	}
	return nil
}

// simulatedLightingDriver keeps the controller state in memory.
type simulatedLightingDriver struct {
	mu   sync.Mutex
	snap LightingSnapshot
}

func (s *simulatedLightingDriver) State(context.Context) (LightingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *simulatedLightingDriver) Apply(_ context.Context, snap LightingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Preset == 0 {
		snap.Preset = s.snap.Preset
	}
	s.snap = snap
	return nil
}
