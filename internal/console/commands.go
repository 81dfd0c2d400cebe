package console

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"chairctl/internal/kernel"
	"chairctl/internal/services"
	"chairctl/pkg/chairtypes"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (c *Console) add(cmd command) {
	c.commands[cmd.name] = cmd
}

func (c *Console) register() {
	c.add(command{name: "status", usage: "status", help: "show chair and service state", run: c.status})
	c.add(command{name: "buttons", usage: "buttons", help: "list remote buttons and their scripts", run: c.buttons})
	c.add(command{name: "press", usage: "press <button>", help: "press a remote button", minArgs: 1, run: c.press})
	c.add(command{name: "run", usage: "run <script>", help: "run a script and wait for it", minArgs: 1, run: c.runScript})
	c.add(command{name: "lock", usage: "lock", help: "lock the chair", run: c.lock})
	c.add(command{name: "unlock", usage: "unlock <pin>", help: "enter the pin", minArgs: 1, run: c.unlock})
	c.add(command{name: "relay", usage: "relay <name> on [hold-seconds] | relay <name> off", help: "switch a relay", minArgs: 2, run: c.relay})
	c.add(command{name: "scene", usage: "scene <main|aux|both> <scene>", help: "show a scene", minArgs: 2, run: c.scene})
	c.add(command{name: "sound", usage: "sound <effect>", help: "play a sound effect", minArgs: 1, run: c.sound})
	c.add(command{name: "music", usage: "music <track> | music stop", help: "play or stop a track", minArgs: 1, run: c.music})
	c.add(command{name: "lights", usage: "lights <effect>", help: "run a lighting effect", minArgs: 1, run: c.lights})
	c.add(command{name: "brightness", usage: "brightness <0-255>", help: "set lighting brightness", minArgs: 1, run: c.brightness})
	c.add(command{name: "volume", usage: "volume <audio|music> <0-100>", help: "set playback volume", minArgs: 2, run: c.volume})
	c.add(command{name: "where", usage: "where", help: "show position and map tile", run: c.where})
	c.add(command{name: "zoom", usage: "zoom <level>", help: "set map zoom", minArgs: 1, run: c.zoom})
}

func (c *Console) status(_ context.Context, w io.Writer, _ []string) error {
	st, err := c.k.State()
	if err != nil {
		return err
	}
	mode, err := c.k.RunMode()
	if err != nil {
		return err
	}

	line(w, "mode", mode)
	line(w, "state", st.Master.Get())
	line(w, "bar", st.Bar.Get())
	line(w, "message", st.Message.Get())

	if relays, err := kernel.StateOf(c.k, services.RelayKey); err == nil {
		line(w, "relays", onOff(relays.Relays.Get())+online(relays.Online.Get()))
	}
	if lighting, err := kernel.StateOf(c.k, services.LightingKey); err == nil {
		line(w, "lighting", fmt.Sprintf("%s @%d", orNone(lighting.Effect.Get()), lighting.Brightness.Get())+online(lighting.Online.Get()))
	}
	if music, err := kernel.StateOf(c.k, services.MusicKey); err == nil {
		line(w, "music", orNone(music.Track.Get())+online(music.Online.Get()))
	}
	if display, err := kernel.StateOf(c.k, services.DisplayKey); err == nil {
		line(w, "screens", fmt.Sprintf("main=%s aux=%s", orNone(display.Main.Get()), orNone(display.Aux.Get())))
	}
	if security, err := kernel.StateOf(c.k, services.SecurityKey); err == nil {
		line(w, "locked", fmt.Sprintf("%t (failed attempts %d)", security.Locked.Get(), security.FailedAttempts.Get()))
	}
	if scripts, err := kernel.StateOf(c.k, services.ScriptKey); err == nil {
		running := make([]string, 0, len(scripts.Running.Get()))
		for _, id := range scripts.Running.Get() {
			running = append(running, string(id))
		}
		line(w, "running", orNone(strings.Join(running, ", ")))
		if last := scripts.LastError.Get(); last != "" {
			line(w, "last error", last)
		}
	}
	return nil
}

func (c *Console) buttons(_ context.Context, w io.Writer, _ []string) error {
	remote, err := kernel.Lookup(c.k, services.RemoteKey)
	if err != nil {
		return err
	}
	for _, button := range remote.Buttons() {
		id, _ := remote.Binding(button)
		fmt.Fprintf(w, "%s -> %s\n", button, id)
	}
	return nil
}

func (c *Console) press(_ context.Context, w io.Writer, args []string) error {
	remote, err := kernel.Lookup(c.k, services.RemoteKey)
	if err != nil {
		return err
	}
	id, ok := remote.Binding(args[0])
	remote.Press(args[0])
	if ok {
		fmt.Fprintf(w, "%s pressed, running %s\n", args[0], id)
	} else {
		fmt.Fprintf(w, "%s pressed, no binding\n", args[0])
	}
	return nil
}

func (c *Console) runScript(ctx context.Context, w io.Writer, args []string) error {
	id, err := chairtypes.ParseScriptID(args[0])
	if err != nil {
		return err
	}
	runner, err := kernel.Lookup(c.k, services.ScriptKey)
	if err != nil {
		return err
	}

	started := time.Now()
	if err := runner.Run(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s finished in %s\n", id, time.Since(started).Round(time.Millisecond))
	return nil
}

func (c *Console) lock(_ context.Context, w io.Writer, _ []string) error {
	security, err := kernel.Lookup(c.k, services.SecurityKey)
	if err != nil {
		return err
	}
	if err := security.Lock(); err != nil {
		return err
	}
	fmt.Fprintln(w, "locked")
	return nil
}

func (c *Console) unlock(_ context.Context, w io.Writer, args []string) error {
	security, err := kernel.Lookup(c.k, services.SecurityKey)
	if err != nil {
		return err
	}
	ok, err := security.Unlock(args[0])
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(w, "unlocked")
	} else {
		fmt.Fprintf(w, "wrong pin (%d failed)\n", security.State().FailedAttempts.Get())
	}
	return nil
}

func (c *Console) relay(ctx context.Context, w io.Writer, args []string) error {
	relays, err := kernel.Lookup(c.k, services.RelayKey)
	if err != nil {
		return err
	}

	name := args[0]
	switch args[1] {
	case "on":
		var hold time.Duration
		if len(args) > 2 {
			secs, err := strconv.ParseFloat(args[2], 64)
			if err != nil || secs < 0 {
				return fmt.Errorf("invalid hold %q", args[2])
			}
			hold = time.Duration(secs * float64(time.Second))
		}
		if err := relays.On(ctx, name, hold, false); err != nil {
			return err
		}
	case "off":
		if err := relays.Off(name); err != nil {
			return err
		}
	default:
		return fmt.Errorf("relay state must be on or off, got %q", args[1])
	}

	fmt.Fprintf(w, "%s %s\n", name, onOff(relays.State().Relays.Get()))
	return nil
}

func (c *Console) scene(_ context.Context, w io.Writer, args []string) error {
	screen, err := services.ParseScreen(args[0])
	if err != nil {
		return err
	}
	display, err := kernel.Lookup(c.k, services.DisplayKey)
	if err != nil {
		return err
	}
	if err := display.ShowScene(screen, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s showing %s\n", screen, args[1])
	return nil
}

func (c *Console) sound(ctx context.Context, _ io.Writer, args []string) error {
	audio, err := kernel.Lookup(c.k, services.AudioKey)
	if err != nil {
		return err
	}
	return audio.PlayEffect(ctx, args[0], false)
}

func (c *Console) music(ctx context.Context, w io.Writer, args []string) error {
	music, err := kernel.Lookup(c.k, services.MusicKey)
	if err != nil {
		return err
	}
	if args[0] == "stop" {
		music.Stop()
		fmt.Fprintln(w, "music stopped")
		return nil
	}
	return music.Play(ctx, args[0], false)
}

func (c *Console) lights(_ context.Context, w io.Writer, args []string) error {
	lighting, err := kernel.Lookup(c.k, services.LightingKey)
	if err != nil {
		return err
	}
	if err := lighting.RunEffect(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(w, "lighting %s\n", orNone(lighting.State().Effect.Get()))
	return nil
}

func (c *Console) brightness(_ context.Context, _ io.Writer, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid brightness %q", args[0])
	}
	lighting, err := kernel.Lookup(c.k, services.LightingKey)
	if err != nil {
		return err
	}
	return lighting.SetBrightness(level)
}

func (c *Console) volume(_ context.Context, w io.Writer, args []string) error {
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid volume %q", args[1])
	}

	switch args[0] {
	case "audio":
		audio, err := kernel.Lookup(c.k, services.AudioKey)
		if err != nil {
			return err
		}
		audio.SetVolume(level)
		fmt.Fprintf(w, "audio volume %d\n", audio.State().Volume.Get())
	case "music":
		music, err := kernel.Lookup(c.k, services.MusicKey)
		if err != nil {
			return err
		}
		music.SetVolume(level)
		fmt.Fprintf(w, "music volume %d\n", music.State().Volume.Get())
	default:
		return fmt.Errorf("volume target must be audio or music, got %q", args[0])
	}
	return nil
}

func (c *Console) where(_ context.Context, w io.Writer, _ []string) error {
	location, err := kernel.Lookup(c.k, services.LocationKey)
	if err != nil {
		return err
	}
	maps, err := kernel.Lookup(c.k, services.MapKey)
	if err != nil {
		return err
	}

	if pos, ok := location.Position(); ok {
		line(w, "position", fmt.Sprintf("%.5f, %.5f", pos.Lat, pos.Lon))
	} else {
		line(w, "position", "no fix"+online(location.State().Online.Get()))
	}
	z, x, y := maps.CenterTile()
	line(w, "tile", fmt.Sprintf("%d/%d/%d", z, x, y))
	return nil
}

func (c *Console) zoom(_ context.Context, w io.Writer, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid zoom %q", args[0])
	}
	maps, err := kernel.Lookup(c.k, services.MapKey)
	if err != nil {
		return err
	}
	if err := maps.SetZoom(level); err != nil {
		return err
	}
	fmt.Fprintf(w, "zoom %d\n", maps.State().Zoom.Get())
	return nil
}

func line(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), value)
}

// onOff renders the energized relays, sorted.
func onOff(relays map[string]bool) string {
	var on []string
	for name, energized := range relays {
		if energized {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "all off"
	}
	slices.Sort(on)
	return "on: " + strings.Join(on, ", ")
}

func online(ok bool) string {
	if ok {
		return ""
	}
	return " " + offlineStyle.Render("(offline)")
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
