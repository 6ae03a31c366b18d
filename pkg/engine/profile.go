package engine

import (
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/layer"
)

// Profile is a named set of layer parameters. Profiles are immutable values;
// the engine builds fresh layers from one for every call.
type Profile struct {
	Name          string
	Description   string
	MaxRounds     int           // upper bound of layer 5 rounds
	MaxNoiseRatio float64       // upper bound of the layer 6 noise ratio
	TagSize       int           // layer 7 tag length
	TokenTTL      time.Duration // layer 2 token lifetime, zero for none
}

// Built-in profiles.
var (
	Maximum = Profile{
		Name:          constants.ProfileMaximum,
		Description:   "Maximum security - all layers at highest settings",
		MaxRounds:     16,
		MaxNoiseRatio: 0.5,
		TagSize:       constants.FullTagSize,
	}

	Balanced = Profile{
		Name:          constants.ProfileBalanced,
		Description:   "Balanced security and performance",
		MaxRounds:     8,
		MaxNoiseRatio: 0.3,
		TagSize:       constants.FullTagSize,
		TokenTTL:      time.Hour,
	}

	Performance = Profile{
		Name:          constants.ProfilePerformance,
		Description:   "Performance optimized while maintaining security",
		MaxRounds:     4,
		MaxNoiseRatio: 0.1,
		TagSize:       constants.ShortTagSize,
		TokenTTL:      30 * time.Minute,
	}
)

// Profiles returns the built-in profiles from strongest to fastest.
func Profiles() []Profile {
	return []Profile{Maximum, Balanced, Performance}
}

// LookupProfile returns the built-in profile called name.
func LookupProfile(name string) (Profile, bool) {
	for _, p := range Profiles() {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Validate range-checks every field of the profile.
func (p Profile) Validate() error {
	const op = "engine.Profile.Validate"
	switch {
	case p.Name == "" || len(p.Name) > constants.MaxProfileNameSize:
		return qerrors.NewValidationError(op, "name", qerrors.ErrInvalidParameter)
	case p.MaxRounds < constants.MinPermutationRounds || p.MaxRounds > constants.MaxPermutationRounds:
		return qerrors.NewValidationError(op, "maxRounds", qerrors.ErrInvalidParameter)
	case !(p.MaxNoiseRatio >= constants.MinNoiseRatio && p.MaxNoiseRatio <= constants.MaxNoiseRatio):
		return qerrors.NewValidationError(op, "maxNoiseRatio", qerrors.ErrInvalidParameter)
	case p.TagSize != constants.ShortTagSize && p.TagSize != constants.FullTagSize:
		return qerrors.NewValidationError(op, "tagSize", qerrors.ErrInvalidParameter)
	case p.TokenTTL < 0:
		return qerrors.NewValidationError(op, "tokenTTL", qerrors.ErrInvalidParameter)
	}
	return nil
}

// Params returns the layer parameters of the profile. The token TTL is only
// carried over when enforceTTL is set.
func (p Profile) Params(clock layer.Clock, enforceTTL bool) layer.Params {
	params := layer.Params{
		MaxRounds:     p.MaxRounds,
		MaxNoiseRatio: p.MaxNoiseRatio,
		TagSize:       p.TagSize,
		Clock:         clock,
	}
	if enforceTTL {
		params.TokenTTL = p.TokenTTL
	}
	return params
}

// String returns the profile name.
func (p Profile) String() string {
	return p.Name
}
