package engine

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Output modes grew over engine releases. hwdb snippets (generic and
// firmware-scoped) arrived with 2.2.0; the condensed high-level summary
// with 2.2.5. Below those, the mode simply does not exist and callers get
// empty output instead of an error.
const (
	hwdbMinVersion      = "v2.2.0"
	highLevelMinVersion = "v2.2.5"
)

// Capabilities answers "does this engine release support that output mode",
// derived once per bucket from the binary's reported version.
type Capabilities struct {
	v string
}

// CapabilitiesFor builds Capabilities from a full reported version. An
// unparseable version supports nothing beyond the baseline modes.
func CapabilitiesFor(fullVersion string) Capabilities {
	v := fullVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Capabilities{}
	}
	return Capabilities{v: v}
}

// Hwdb reports whether the engine can emit hardware-database snippets.
func (c Capabilities) Hwdb() bool {
	return c.v != "" && semver.Compare(c.v, hwdbMinVersion) >= 0
}

// HighLevel reports whether the engine can emit the high-level summary.
func (c Capabilities) HighLevel() bool {
	return c.v != "" && semver.Compare(c.v, highLevelMinVersion) >= 0
}
