package main

import (
	"fmt"
	"io"

	"chairctl/internal/boot"
	"chairctl/internal/script"
	"chairctl/pkg/chairtypes"
)

// validateProfile loads the profile at path, checks it against mode and parses its
// scripts. Nothing is booted.
func validateProfile(w io.Writer, path string, mode chairtypes.RunMode) error {
	p, err := boot.LoadProfile(path, mode)
	if err != nil {
		return err
	}

	scripts, err := script.Load(p.ResolvePath(p.ScriptsDir))
	if err != nil {
		return fmt.Errorf("scripts: %w", err)
	}

	commands := 0
	for _, s := range scripts {
		commands += len(s.Commands)
	}
	fmt.Fprintf(w, "profile %s is valid for %s: %d scripts, %d commands\n", p.Name, mode, len(scripts), commands)
	return nil
}
