package services

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

const maxZoom = 19

// ErrTileNotFound is returned when a tile is not present in the tile directory.
var ErrTileNotFound = errors.New("tile not found")

// MapState is published by the map service.
type MapState struct {
	Center *state.Cell[chairtypes.Position]
	Zoom   *state.Cell[int]
}

type tileKey struct {
	z, x, y int
}

// MapService serves slippy-map tiles around the chair's position. Tiles are read from
// <tile_dir>/<z>/<x>/<y>.png through an LRU cache.
type MapService struct {
	k       *kernel.Kernel
	tileDir string
	cache   *lru.Cache[tileKey, []byte]
	logger  *log.Logger

	center *state.Writer[chairtypes.Position]
	zoom   *state.Writer[int]
	st     *MapState

	mu        sync.Mutex
	stopWatch func()
}

// NewMapService builds the map service. Tiles come from disk in every run mode.
func NewMapService(k *kernel.Kernel, mode chairtypes.RunMode, p *profile.Profile) (*MapService, *MapState, error) {
	switch mode {
	case chairtypes.RunModeDev, chairtypes.RunModeEmbeddedControlPanel, chairtypes.RunModeEmbeddedHeadsUp:
	default:
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceMap, "no map source for run mode %s", mode)
	}
	if p.Map.Zoom < 0 || p.Map.Zoom > maxZoom {
		return nil, nil, chairtypes.NewConfigError(chairtypes.ServiceMap, "map.zoom %d out of range 0-%d", p.Map.Zoom, maxZoom)
	}

	svc, st, err := newMapService(k, p.ResolvePath(p.Map.TileDir), p.Map.CacheSize, p.Map.Zoom, p.Location.Home)
	if err != nil {
		return nil, nil, chairtypes.WrapConfigError(chairtypes.ServiceMap, err)
	}
	if svc.tileDir == "" {
		svc.logger.Warn("No tile directory configured, map shows no tiles")
	}
	return svc, st, nil
}

func newMapService(k *kernel.Kernel, tileDir string, cacheSize, zoom int, center chairtypes.Position) (*MapService, *MapState, error) {
	cache, err := lru.New[tileKey, []byte](cacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("tile cache: %w", err)
	}

	centerCell, centerWriter := state.New(center)
	zoomCell, zoomWriter := state.New(zoom)

	st := &MapState{Center: centerCell, Zoom: zoomCell}
	svc := &MapService{
		k:       k,
		tileDir: tileDir,
		cache:   cache,
		logger:  logger.NewStyledLogger("Map"),
		center:  centerWriter,
		zoom:    zoomWriter,
		st:      st,
	}
	return svc, st, nil
}

// Start makes the map follow the location service's fix.
func (m *MapService) Start() error {
	loc, err := kernel.StateOf(m.k, LocationKey)
	if err != nil {
		return fmt.Errorf("map needs location state: %w", err)
	}

	if loc.HasFix.Get() {
		m.center.Set(loc.Fix.Get())
	}
	stop := loc.Fix.Watch(func(pos chairtypes.Position) {
		m.center.Set(pos)
	})

	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()
	return nil
}

// ID returns the service identifier.
func (m *MapService) ID() chairtypes.ServiceID {
	return chairtypes.ServiceMap
}

// State returns the published state.
func (m *MapService) State() *MapState {
	return m.st
}

// SetZoom changes the zoom level.
func (m *MapService) SetZoom(zoom int) error {
	if zoom < 0 || zoom > maxZoom {
		return fmt.Errorf("zoom %d out of range 0-%d", zoom, maxZoom)
	}
	m.zoom.Set(zoom)
	return nil
}

// Tile returns the PNG data of tile z/x/y.
func (m *MapService) Tile(z, x, y int) ([]byte, error) {
	if z < 0 || z > maxZoom {
		return nil, fmt.Errorf("zoom %d out of range 0-%d", z, maxZoom)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return nil, fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}

	key := tileKey{z, x, y}
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}
	if m.tileDir == "" {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrTileNotFound, z, x, y)
	}

	path := filepath.Join(m.tileDir, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".png")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrTileNotFound, z, x, y)
	}
	if err != nil {
		return nil, err
	}

	m.cache.Add(key, data)
	return data, nil
}

// CenterTile returns the coordinates of the tile containing the current center at the
// current zoom.
func (m *MapService) CenterTile() (z, x, y int) {
	z = m.st.Zoom.Get()
	x, y = tileFor(m.st.Center.Get(), z)
	return z, x, y
}

// Terminate stops following the location fix.
func (m *MapService) Terminate() error {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	m.cache.Purge()
	return nil
}

// tileFor converts a position to slippy-map tile coordinates at zoom z.
func tileFor(pos chairtypes.Position, z int) (int, int) {
	n := float64(int(1) << z)
	lat := pos.Lat * math.Pi / 180

	x := int(math.Floor((pos.Lon + 180) / 360 * n))
	y := int(math.Floor((1 - math.Log(math.Tan(lat)+1/math.Cos(lat))/math.Pi) / 2 * n))

	clamp := func(v int) int {
		return max(0, min(v, int(n)-1))
	}
	return clamp(x), clamp(y)
}
