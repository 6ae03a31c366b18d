package layer

import (
	"testing"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// TestStagesTraits checks order and the capability every stage exposes.
func TestStagesTraits(t *testing.T) {
	stages, err := Stages(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != constants.LayerCount {
		t.Fatalf("got %d stages", len(stages))
	}

	shared := map[constants.LayerID]bool{
		constants.LayerSubstitution:     true,
		constants.LayerStreamCipher:     true,
		constants.LayerBlockPermutation: true,
		constants.LayerNoiseEmbedder:    true,
	}
	for i, s := range stages {
		if s.ID() != constants.LayerID(i+1) {
			t.Errorf("stage %d has ID %v", i, s.ID())
		}
		if s.Name() == "" {
			t.Errorf("stage %v has no name", s.ID())
		}
		_, needsNonce := s.(NeedsSharedNonce)
		_, selfContained := s.(SelfContainedFraming)
		if needsNonce == selfContained {
			t.Errorf("stage %v: NeedsSharedNonce=%v SelfContainedFraming=%v", s.ID(), needsNonce, selfContained)
		}
		if needsNonce != shared[s.ID()] {
			t.Errorf("stage %v: unexpected NeedsSharedNonce=%v", s.ID(), needsNonce)
		}
		_, binds := s.(AssociatedDataBinder)
		if binds != (s.ID() == constants.LayerIntegrityTag) {
			t.Errorf("stage %v: AssociatedDataBinder=%v", s.ID(), binds)
		}
	}
}

func TestStagesInvalidParams(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Params)
	}{
		{"rounds", func(p *Params) { p.MaxRounds = 2 }},
		{"ratio", func(p *Params) { p.MaxNoiseRatio = 0.6 }},
		{"tag", func(p *Params) { p.TagSize = 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mod(&p)
			if _, err := Stages(p); !qerrors.IsValidation(err) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}

// TestStagesChain runs all seven stages forward and back with a
// different key per stage.
func TestStagesChain(t *testing.T) {
	stages, err := Stages(Params{MaxRounds: 8, MaxNoiseRatio: 0.3, TagSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	nonce := seq(200, 16)
	keys := make([][]byte, len(stages))
	for i := range keys {
		keys[i] = seq(byte(i*32), 32)
	}

	plaintext := []byte("independently keyed stages, applied in order")
	data := plaintext
	for i, s := range stages {
		if data, err = s.Encrypt(data, keys[i], nonce); err != nil {
			t.Fatalf("%s encrypt: %v", s.Name(), err)
		}
	}
	for i := len(stages) - 1; i >= 0; i-- {
		switch s := stages[i].(type) {
		case NeedsSharedNonce:
			data, err = s.Decrypt(data, keys[i], nonce)
		case SelfContainedFraming:
			data, err = s.Decrypt(data, keys[i])
		}
		if err != nil {
			t.Fatalf("%s decrypt: %v", stages[i].Name(), err)
		}
	}
	assertEqualBytes(t, data, plaintext)
}
