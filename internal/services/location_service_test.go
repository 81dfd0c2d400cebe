package services

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chairctl/internal/profile"
	"chairctl/pkg/chairtypes"
)

const (
	validGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	validRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
)

func TestParseFix(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		expectOK  bool
		expectErr bool
	}{
		{name: "gga", line: validGGA, expectOK: true},
		{name: "rmc", line: validRMC, expectOK: true},
		{name: "gga without fix", line: "$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46"},
		{name: "rmc void", line: "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"},
		{name: "other sentence", line: "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39"},
		{name: "bad checksum", line: "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48", expectErr: true},
		{name: "garbage", line: "not nmea", expectErr: true},
		{name: "empty", line: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, ok, err := parseFix(tt.line)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectOK, ok)
			if tt.expectOK {
				assert.InDelta(t, 48.1173, pos.Lat, 1e-4)
				assert.InDelta(t, 11.516667, pos.Lon, 1e-4)
			}
		})
	}
}

func TestNewLocationService(t *testing.T) {
	home := chairtypes.Position{Lat: 51.5007, Lon: -0.1246}

	t.Run("dev reports home", func(t *testing.T) {
		svc, st, err := NewLocationService(newTestKernel(t), chairtypes.RunModeDev, &profile.Profile{Location: profile.LocationProfile{Home: home}})
		require.NoError(t, err)

		pos, ok := svc.Position()
		assert.True(t, ok)
		assert.Equal(t, home, pos)
		assert.True(t, st.Online.Get())
		require.NoError(t, svc.Terminate())
	})

	t.Run("embedded requires device", func(t *testing.T) {
		_, _, err := NewLocationService(newTestKernel(t), chairtypes.RunModeEmbeddedHeadsUp, &profile.Profile{})
		require.Error(t, err)
		assert.True(t, chairtypes.IsConfigError(err))
	})

	t.Run("missing receiver goes offline", func(t *testing.T) {
		captureLogs(t)
		p := &profile.Profile{Location: profile.LocationProfile{Device: filepath.Join(t.TempDir(), "ttyGPS"), Baud: 9600}}
		svc, st, err := NewLocationService(newTestKernel(t), chairtypes.RunModeEmbeddedControlPanel, p)
		require.NoError(t, err)
		assert.False(t, st.Online.Get())
		assert.False(t, st.HasFix.Get())
		require.NoError(t, svc.Terminate())
	})

	t.Run("unknown run mode", func(t *testing.T) {
		_, _, err := NewLocationService(newTestKernel(t), chairtypes.RunMode("away-team"), &profile.Profile{})
		require.Error(t, err)
	})
}

func TestLocationService_NMEAStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	driver := newNMEADriver(func() (io.ReadCloser, error) { return pr, nil })
	svc, st := newLocationService(newTestKernel(t), driver)

	sub := st.Fix.Subscribe(4)
	defer sub.Close()

	svc.start()
	assert.False(t, st.HasFix.Get())

	go func() {
		_, _ = io.WriteString(pw, "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39\r\n")
		_, _ = io.WriteString(pw, validRMC+"\r\n")
	}()

	select {
	case pos := <-sub.C():
		assert.InDelta(t, 48.1173, pos.Lat, 1e-4)
	case <-time.After(2 * time.Second):
		t.Fatal("no fix published")
	}
	assert.Eventually(t, st.HasFix.Get, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Terminate())
}
