package router

import (
	"fmt"
	"maps"
	"slices"
)

// visibilityIndex maps agent id to the set of session ids that agent is a
// member of. It is derived from session membership and never stored
// anywhere else; rebuildVisibility must always reproduce it.
type visibilityIndex map[string]map[string]struct{}

func (v visibilityIndex) add(agentID, sessionID string) {
	set, ok := v[agentID]
	if !ok {
		set = make(map[string]struct{})
		v[agentID] = set
	}
	set[sessionID] = struct{}{}
}

func (v visibilityIndex) remove(agentID, sessionID string) {
	set, ok := v[agentID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(v, agentID)
	}
}

func (v visibilityIndex) sessions(agentID string) []string {
	ids := slices.Sorted(maps.Keys(v[agentID]))
	if ids == nil {
		return []string{}
	}
	return ids
}

func rebuildVisibility(sessions map[string]*session) visibilityIndex {
	idx := make(visibilityIndex)
	for id, s := range sessions {
		for _, a := range s.members {
			idx.add(a, id)
		}
	}
	return idx
}

// diffVisibility reports the first difference between two indexes, or nil.
func diffVisibility(got, want visibilityIndex) error {
	for agent, set := range want {
		for sid := range set {
			if _, ok := got[agent][sid]; !ok {
				return fmt.Errorf("agent %q missing session %q", agent, sid)
			}
		}
	}
	for agent, set := range got {
		for sid := range set {
			if _, ok := want[agent][sid]; !ok {
				return fmt.Errorf("agent %q has stale session %q", agent, sid)
			}
		}
	}
	return nil
}
