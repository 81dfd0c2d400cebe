package script

import (
	"context"
	"fmt"
	"time"

	"chairctl/internal/services"
	"chairctl/pkg/chairtypes"
)

// Command is one step of a script.
type Command interface {
	// Type is the command's type name as written in script files.
	Type() string
	// Perform executes the command. An error aborts the rest of the script run.
	Perform(ctx context.Context, rt *Runtime) error
	// PostPause is how long the runner waits after Perform returns.
	PostPause() time.Duration
}

// Step holds the post-pause every command carries.
type Step struct {
	Pause time.Duration
}

// PostPause returns the pause after the command.
func (s Step) PostPause() time.Duration {
	return s.Pause
}

// Message publishes status messages. A single Text is published once. Otherwise each of
// Messages is published in turn with Interval plus a uniform jitter in [-Variance,
// +Variance] between consecutive messages.
type Message struct {
	Step
	Text     string
	Messages []string
	Interval time.Duration
	Variance time.Duration
}

func (Message) Type() string { return "message" }

func (c Message) Perform(ctx context.Context, rt *Runtime) error {
	if c.Text != "" {
		rt.Kernel.Message(c.Text)
		return nil
	}

	for i, text := range c.Messages {
		if i > 0 {
			if err := rt.Clock.Sleep(ctx, c.delay(rt)); err != nil {
				return err
			}
		}
		rt.Kernel.Message(text)
	}
	return nil
}

func (c Message) delay(rt *Runtime) time.Duration {
	jitter := (rt.Float64()*2 - 1) * float64(c.Variance)
	return max(0, c.Interval+time.Duration(jitter))
}

// Pause sleeps for Duration, independent of the post-pause.
type Pause struct {
	Step
	Duration time.Duration
}

func (Pause) Type() string { return "pause" }

func (c Pause) Perform(ctx context.Context, rt *Runtime) error {
	return rt.Clock.Sleep(ctx, c.Duration)
}

// PlaySoundEffect plays Effect, or one effect chosen at random from Effects.
type PlaySoundEffect struct {
	Step
	Effect  string
	Effects []string
	Wait    bool
}

func (PlaySoundEffect) Type() string { return "play-sound-effect" }

func (c PlaySoundEffect) Perform(ctx context.Context, rt *Runtime) error {
	audio, err := lookup(rt, services.AudioKey)
	if err != nil {
		return err
	}
	if c.Effect != "" {
		return audio.PlayEffect(ctx, c.Effect, c.Wait)
	}
	return audio.PlayRandomEffect(ctx, c.Effects, c.Wait)
}

// PlayTrack starts a music track.
type PlayTrack struct {
	Step
	Track string
	Wait  bool
}

func (PlayTrack) Type() string { return "play-track" }

func (c PlayTrack) Perform(ctx context.Context, rt *Runtime) error {
	music, err := lookup(rt, services.MusicKey)
	if err != nil {
		return err
	}
	return music.Play(ctx, c.Track, c.Wait)
}

// StopTrack stops the current track.
type StopTrack struct {
	Step
}

func (StopTrack) Type() string { return "stop-track" }

func (c StopTrack) Perform(_ context.Context, rt *Runtime) error {
	music, err := lookup(rt, services.MusicKey)
	if err != nil {
		return err
	}
	music.Stop()
	return nil
}

// RelayOn energizes a relay, optionally only for Hold.
type RelayOn struct {
	Step
	Relay string
	Hold  time.Duration
	Wait  bool
}

func (RelayOn) Type() string { return "relay-on" }

func (c RelayOn) Perform(ctx context.Context, rt *Runtime) error {
	relay, err := lookup(rt, services.RelayKey)
	if err != nil {
		return err
	}
	return relay.On(ctx, c.Relay, c.Hold, c.Wait)
}

// RelayOff de-energizes a relay.
type RelayOff struct {
	Step
	Relay string
}

func (RelayOff) Type() string { return "relay-off" }

func (c RelayOff) Perform(_ context.Context, rt *Runtime) error {
	relay, err := lookup(rt, services.RelayKey)
	if err != nil {
		return err
	}
	return relay.Off(c.Relay)
}

// RunLightingEffect runs a named lighting effect.
type RunLightingEffect struct {
	Step
	Effect string
}

func (RunLightingEffect) Type() string { return "run-lighting-effect" }

func (c RunLightingEffect) Perform(_ context.Context, rt *Runtime) error {
	if c.Effect == "" {
		rt.Logger.Warn("Lighting effect command without an effect")
		return nil
	}
	lighting, err := lookup(rt, services.LightingKey)
	if err != nil {
		return err
	}
	return lighting.RunEffect(c.Effect)
}

// StoreLightingState snapshots the lights.
type StoreLightingState struct {
	Step
}

func (StoreLightingState) Type() string { return "store-lighting-state" }

func (c StoreLightingState) Perform(_ context.Context, rt *Runtime) error {
	lighting, err := lookup(rt, services.LightingKey)
	if err != nil {
		return err
	}
	return lighting.StoreState()
}

// RestoreLightingState reapplies the last lighting snapshot.
type RestoreLightingState struct {
	Step
}

func (RestoreLightingState) Type() string { return "restore-lighting-state" }

func (c RestoreLightingState) Perform(_ context.Context, rt *Runtime) error {
	lighting, err := lookup(rt, services.LightingKey)
	if err != nil {
		return err
	}
	return lighting.RestoreState()
}

// SetBarState records the safety bar position.
type SetBarState struct {
	Step
	Bar chairtypes.BarState
}

func (SetBarState) Type() string { return "set-bar-state" }

func (c SetBarState) Perform(_ context.Context, rt *Runtime) error {
	return rt.Kernel.SetBarState(c.Bar)
}

// SetChairState transitions the master state.
type SetChairState struct {
	Step
	State chairtypes.MasterState
}

func (SetChairState) Type() string { return "set-chair-state" }

func (c SetChairState) Perform(_ context.Context, rt *Runtime) error {
	return rt.Kernel.SetMasterState(c.State)
}

// ShowScene switches a screen to a scene.
type ShowScene struct {
	Step
	Screen services.Screen
	Scene  string
}

func (ShowScene) Type() string { return "show-scene" }

func (c ShowScene) Perform(_ context.Context, rt *Runtime) error {
	display, err := lookup(rt, services.DisplayKey)
	if err != nil {
		return err
	}
	return display.ShowScene(c.Screen, c.Scene)
}

// Shutdown puts both screens on the safe scene, optionally powers off the host, closes
// windowing and asks the process to exit.
type Shutdown struct {
	Step
	PowerOff bool
}

func (Shutdown) Type() string { return "shutdown" }

func (c Shutdown) Perform(ctx context.Context, rt *Runtime) error {
	display, err := lookup(rt, services.DisplayKey)
	if err != nil {
		return err
	}

	if err := rt.Kernel.SetMasterState(chairtypes.MasterShuttingDown); err != nil {
		return err
	}
	if err := display.ShowScene(services.ScreenBoth, display.SafeScene()); err != nil {
		rt.Logger.Error("Failed to show safe scene", "error", err)
	}

	if c.PowerOff {
		if len(rt.PowerOffCommand) == 0 {
			rt.Logger.Warn("Power off requested but no power_off_command configured")
		} else if err := rt.Exec(ctx, rt.PowerOffCommand); err != nil {
			rt.Logger.Error("Power off command failed", "error", err)
		}
	}

	if err := display.TerminateWindowing(); err != nil {
		rt.Logger.Error("Failed to terminate windowing", "error", err)
	}
	rt.Kernel.RequestShutdown()
	return nil
}

// describe renders a command for logs.
func describe(c Command) string {
	switch c := c.(type) {
	case Message:
		if c.Text != "" {
			return fmt.Sprintf("message %q", c.Text)
		}
		return fmt.Sprintf("message x%d", len(c.Messages))
	case PlaySoundEffect:
		if c.Effect != "" {
			return "play-sound-effect " + c.Effect
		}
		return fmt.Sprintf("play-sound-effect %v", c.Effects)
	case PlayTrack:
		return "play-track " + c.Track
	case RelayOn:
		return "relay-on " + c.Relay
	case RelayOff:
		return "relay-off " + c.Relay
	case RunLightingEffect:
		return "run-lighting-effect " + c.Effect
	case SetBarState:
		return "set-bar-state " + string(c.Bar)
	case SetChairState:
		return "set-chair-state " + string(c.State)
	case ShowScene:
		return fmt.Sprintf("show-scene %s %s", c.Screen, c.Scene)
	default:
		return c.Type()
	}
}
