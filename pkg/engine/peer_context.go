package engine

import (
	"fmt"
)

// GlobalContextKey is the reserved peer context key shared by every feature.
const GlobalContextKey = "global"

// PeerContext maps feature names to their context values.
type PeerContext map[string]any

// Get returns the context value for key.
func (p PeerContext) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// Global returns the reduced global context.
func (p PeerContext) Global() any {
	return p[GlobalContextKey]
}

func (p PeerContext) snapshot() PeerContext {
	out := make(PeerContext, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Reducer folds a context value. peers is a snapshot of the map as it was before the
// reducer ran, with global already reduced in the second phase.
type Reducer func(current any, peers PeerContext) (any, error)

// MergePeerContexts builds the peer context for features.
//
// Every feature's initial context is collected first. Reducers for GlobalContextKey
// run next, in declaration order. All other keys are then reduced in declaration order
// of the feature that owns them, applying reducers in declaration order. A key no
// feature initialized is never created by a reducer.
func MergePeerContexts(features []Feature, global any) (PeerContext, error) {
	peers := PeerContext{GlobalContextKey: global}
	owners := make([]string, 0, len(features))

	for _, f := range features {
		if f.Name == GlobalContextKey {
			return nil, NewConfigurationError("feature name is reserved", nil).
				WithCode(ErrCodeReservedName).
				WithFeature(f.Name)
		}
		if f.InitialPeerContext == nil {
			continue
		}
		peers[f.Name] = f.InitialPeerContext()
		owners = append(owners, f.Name)
	}

	reducers := make([]map[string]Reducer, len(features))
	for i, f := range features {
		if f.ModifyPeerContexts != nil {
			reducers[i] = f.ModifyPeerContexts()
		}
	}

	reduce := func(key string) error {
		for i, f := range features {
			r, ok := reducers[i][key]
			if !ok || r == nil {
				continue
			}
			next, err := r(peers[key], peers.snapshot())
			if err != nil {
				return fmt.Errorf("feature %q reducing peer context %q: %w", f.Name, key, err)
			}
			peers[key] = next
		}
		return nil
	}

	if err := reduce(GlobalContextKey); err != nil {
		return nil, err
	}
	for _, key := range owners {
		if err := reduce(key); err != nil {
			return nil, err
		}
	}

	return peers, nil
}
