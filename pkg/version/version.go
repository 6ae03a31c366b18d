// Package version reports the library version and the wire formats this
// build reads and writes.
package version

import (
	"fmt"
	"runtime"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
)

// Library version.
const (
	Major = 1
	Minor = 0
	Patch = 0
	Label = ""
)

// Formats lists the on-disk and on-wire format identifiers.
type Formats struct {
	Packet   string `json:"packet"`
	Envelope string `json:"envelope"`
	Token    byte   `json:"token"`
}

// SupportedFormats returns the formats this build produces.
func SupportedFormats() Formats {
	return Formats{
		Packet:   constants.Version,
		Envelope: constants.EnvelopeVersion,
		Token:    constants.TokenVersion,
	}
}

// String returns the semantic version, e.g. "v1.0.0" or "v1.1.0-rc1".
func String() string {
	v := fmt.Sprintf("v%d.%d.%d", Major, Minor, Patch)
	if Label != "" {
		v += "-" + Label
	}
	return v
}

// Full describes the build for `sevenlayer version`.
func Full() string {
	f := SupportedFormats()
	return fmt.Sprintf("SevenLayer %s (packet format %s, envelope %s, token 0x%02x, %s)",
		String(), f.Packet, f.Envelope, f.Token, runtime.Version())
}
