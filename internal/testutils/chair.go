package testutils

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"chairctl/internal/boot"
	"chairctl/internal/kernel"
	"chairctl/internal/metrics"
	"chairctl/internal/profile"
	"chairctl/pkg/chairtypes"
)

// DevProfileJSONC is a profile on which every dev-mode driver is simulated.
const DevProfileJSONC = `{
  "name": "test-chair",
  "requires": ">= 0.1.0",
  "run_modes": ["dev"],
  "initial_state": "running",
  "audio": {"simulated": true, "volume": 80},
  "music": {"simulated": true, "volume": 60},
  "relay": {"relays": {"bar_lift": 1, "bar_lower": 2, "smoke": 3}},
  "lighting": {"brightness": 128, "effects": {"idle": 1, "red_alert": 3, "party": 5}},
  "location": {"home": {"lat": 51.5007, "lon": -0.1246}},
  "map": {"zoom": 12, "cache_size": 16},
  "remote": {"bindings": {"A": "lock", "B": "chap-mode", "C": "raise-bar"}},
  "security": {"pin": "1701", "max_attempts": 3},
  "display": {"default_scene": "bridge", "safe_scene": "standby"},
}`

// DevProfile parses DevProfileJSONC.
func DevProfile(t testing.TB) *profile.Profile {
	t.Helper()
	p, err := profile.Parse([]byte(DevProfileJSONC))
	require.NoError(t, err)
	return p
}

// BootChair boots a dev-mode kernel on p with private metrics. The kernel is terminated
// when the test ends.
func BootChair(t testing.TB, p *profile.Profile) (*kernel.Kernel, *metrics.Metrics) {
	t.Helper()
	m := metrics.MustNewMetrics(prometheus.NewRegistry())
	k, err := boot.Boot(context.Background(), p, chairtypes.RunModeDev, kernel.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Terminate() })
	return k, m
}

// BootDevChair boots the dev profile.
func BootDevChair(t testing.TB) *kernel.Kernel {
	t.Helper()
	k, _ := BootChair(t, DevProfile(t))
	return k
}
