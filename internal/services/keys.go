package services

import (
	"context"

	"chairctl/internal/kernel"
	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// ScriptRunner is the script service's contract. Services that need to trigger scripts
// (remote buttons, security) reach the script service through ScriptKey without
// depending on the script engine package.
type ScriptRunner interface {
	chairtypes.Service
	Run(ctx context.Context, id chairtypes.ScriptID) error
	RunAsync(id chairtypes.ScriptID)
}

// ScriptState is published by the script service.
type ScriptState struct {
	// Running lists the scripts with an in-flight run.
	Running *state.Cell[[]chairtypes.ScriptID]
	// LastError is the error of the most recent failed run, empty if none failed yet.
	LastError *state.Cell[string]
}

// Typed registry keys for every service.
var (
	AudioKey    = kernel.NewKey[*AudioService, *AudioState](chairtypes.ServiceAudio)
	DisplayKey  = kernel.NewKey[*DisplayService, *DisplayState](chairtypes.ServiceDisplay)
	LightingKey = kernel.NewKey[*LightingService, *LightingState](chairtypes.ServiceLighting)
	LocationKey = kernel.NewKey[*LocationService, *LocationState](chairtypes.ServiceLocation)
	MapKey      = kernel.NewKey[*MapService, *MapState](chairtypes.ServiceMap)
	MusicKey    = kernel.NewKey[*MusicService, *MusicState](chairtypes.ServiceMusic)
	RelayKey    = kernel.NewKey[*RelayService, *RelayState](chairtypes.ServiceRelay)
	RemoteKey   = kernel.NewKey[*RemoteService, *RemoteState](chairtypes.ServiceRemote)
	ScriptKey   = kernel.NewKey[ScriptRunner, *ScriptState](chairtypes.ServiceScript)
	SecurityKey = kernel.NewKey[*SecurityService, *SecurityState](chairtypes.ServiceSecurity)
)

// Starter is implemented by services that need the initialized kernel, for example to
// look up another service's state. Boot calls Start on each one after Initialize.
type Starter interface {
	Start() error
}
