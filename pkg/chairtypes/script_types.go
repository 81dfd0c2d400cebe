package chairtypes

import "fmt"

// ScriptID identifies one of the chair's predefined scripts.
type ScriptID string

const (
	ScriptBoot     ScriptID = "boot"
	ScriptLock     ScriptID = "lock"
	ScriptUnlock   ScriptID = "unlock"
	ScriptChapMode ScriptID = "chap-mode"
	ScriptRaiseBar ScriptID = "raise-bar"
	ScriptLowerBar ScriptID = "lower-bar"
	ScriptShutdown ScriptID = "shutdown"
	ScriptIntruder ScriptID = "intruder"
)

// AllScriptIDs returns the closed set of script identifiers.
func AllScriptIDs() []ScriptID {
	return []ScriptID{
		ScriptBoot,
		ScriptLock,
		ScriptUnlock,
		ScriptChapMode,
		ScriptRaiseBar,
		ScriptLowerBar,
		ScriptShutdown,
		ScriptIntruder,
	}
}

// ParseScriptID converts a string to a ScriptID, rejecting names outside the closed set.
func ParseScriptID(s string) (ScriptID, error) {
	for _, id := range AllScriptIDs() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown script %q", s)
}
