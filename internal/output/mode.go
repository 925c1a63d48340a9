// Package output shrinks Kubernetes API payloads before they are handed back to a model.
//
// Reduce strips metadata and, in compact mode, prunes status and spec. Summarize
// produces a per-kind one-line view. Both are pure: they build new values from
// the input and never modify it.
package output

import (
	"fmt"
	"strings"
)

// Mode is the verbosity tier of a reduced resource.
type Mode string

const (
	ModeCompact Mode = "compact"
	ModeNormal  Mode = "normal"
	ModeVerbose Mode = "verbose"

	DefaultMode = ModeNormal
)

// Modes lists every mode from least to most verbose.
func Modes() []Mode {
	return []Mode{ModeCompact, ModeNormal, ModeVerbose}
}

// ParseMode accepts compact, normal and verbose in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCompact, ModeNormal, ModeVerbose:
		return m, nil
	default:
		return "", fmt.Errorf("invalid output mode %q (expected compact, normal or verbose)", s)
	}
}

// ModeOrDefault is ParseMode with invalid and empty values mapped to DefaultMode.
func ModeOrDefault(s string) Mode {
	m, err := ParseMode(s)
	if err != nil {
		return DefaultMode
	}
	return m
}

// Rank orders modes by verbosity. Unknown modes rank as DefaultMode.
func (m Mode) Rank() int {
	switch m {
	case ModeCompact:
		return 0
	case ModeVerbose:
		return 2
	default:
		return 1
	}
}

func (m Mode) String() string {
	return string(m)
}

// strippedMetadata is the metadata field set removed per mode.
var strippedMetadata = map[Mode][]string{
	ModeCompact: {
		"managedFields", "resourceVersion", "selfLink", "uid", "generation",
		"creationTimestamp", "ownerReferences", "finalizers", "annotations", "labels",
	},
	ModeNormal: {
		"managedFields", "resourceVersion", "selfLink", "generation", "ownerReferences", "finalizers",
	},
	ModeVerbose: {
		"managedFields",
	},
}
