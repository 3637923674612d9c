package engine

import (
	"errors"
	"testing"
)

func TestMergePeerContexts(t *testing.T) {
	var sawGlobal any
	features := []Feature{
		{
			Name:               "typescript",
			InitialPeerContext: func() any { return []string{"tsc"} },
			ModifyPeerContexts: func() map[string]Reducer {
				return map[string]Reducer{
					GlobalContextKey: func(current any, _ PeerContext) (any, error) {
						return current.(int) + 1, nil
					},
				}
			},
		},
		{
			Name: "eslint",
			ModifyPeerContexts: func() map[string]Reducer {
				return map[string]Reducer{
					"typescript": func(current any, peers PeerContext) (any, error) {
						sawGlobal = peers.Global()
						return append(current.([]string), "eslint"), nil
					},
					GlobalContextKey: func(current any, _ PeerContext) (any, error) {
						return current.(int) * 10, nil
					},
					"absent": func(current any, _ PeerContext) (any, error) {
						return "created", nil
					},
				}
			},
		},
	}

	peers, err := MergePeerContexts(features, 1)
	if err != nil {
		t.Fatalf("MergePeerContexts() error = %v", err)
	}
	if got := peers.Global(); got != 20 {
		t.Errorf("global = %v, want 20", got)
	}
	if sawGlobal != 20 {
		t.Errorf("reducer saw global %v, want the reduced value", sawGlobal)
	}
	ts, _ := peers.Get("typescript")
	if list := ts.([]string); len(list) != 2 || list[1] != "eslint" {
		t.Errorf("typescript context = %v", ts)
	}
	if _, ok := peers.Get("absent"); ok {
		t.Error("reducers must not create uninitialized keys")
	}
	if _, ok := peers.Get("eslint"); ok {
		t.Error("features without an initial context have no entry")
	}
}

func TestMergePeerContextsReservedName(t *testing.T) {
	_, err := MergePeerContexts([]Feature{{Name: GlobalContextKey}}, nil)
	if !IsConfiguration(err) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestMergePeerContextsReducerError(t *testing.T) {
	boom := errors.New("boom")
	features := []Feature{{
		Name:               "a",
		InitialPeerContext: func() any { return 0 },
		ModifyPeerContexts: func() map[string]Reducer {
			return map[string]Reducer{"a": func(any, PeerContext) (any, error) { return nil, boom }}
		},
	}}
	if _, err := MergePeerContexts(features, nil); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}
