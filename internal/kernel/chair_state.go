package kernel

import (
	"sort"

	"chairctl/internal/state"
	"chairctl/pkg/chairtypes"
)

// ChairState is the aggregate state tree owned by the kernel.
// Service entries are added at registration and never removed.
type ChairState struct {
	// Master is the top-level lifecycle/mode indicator.
	Master *state.Cell[chairtypes.MasterState]
	// Message is the latest human-readable status message.
	Message *state.Cell[string]
	// Bar is the position of the raisable bar.
	Bar *state.Cell[chairtypes.BarState]

	services map[chairtypes.ServiceID]any
}

// ServiceState returns the raw state object a service published at registration.
// Use StateOf for typed access.
func (s *ChairState) ServiceState(id chairtypes.ServiceID) (any, bool) {
	st, ok := s.services[id]
	return st, ok
}

// ServiceIDs returns the identifiers with published state, sorted.
func (s *ChairState) ServiceIDs() []chairtypes.ServiceID {
	ids := make([]chairtypes.ServiceID, 0, len(s.services))
	for id := range s.services {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
