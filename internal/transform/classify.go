package transform

import "github.com/reheat-dev/reheat/internal/jsparse"

// Classification tags a compiled module by reload risk. Only Plain files
// are eligible for in-place patching; the others force a full reload.
type Classification int

const (
	// Plain is any module safe to patch in place.
	Plain Classification = iota
	// Component is a module carrying a component-definition marker.
	Component
	// InitFile is a module carrying an application-mount marker.
	InitFile
	// CoreDefinition is a barrel/index-style module whose exports are too
	// diffusely referenced to patch safely.
	CoreDefinition
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case Component:
		return "component"
	case InitFile:
		return "init-file"
	case CoreDefinition:
		return "core-definition"
	default:
		return "plain"
	}
}

// PatchEligible reports whether a module of this classification may be
// patched in place by the reconciler.
func (c Classification) PatchEligible() bool {
	return c == Plain
}

// coreDefinitionRatio is the share of top-level nodes that must be
// import/export declarations for a file to count as a barrel.
const coreDefinitionRatio = 0.7

// Classify computes the reload classification from structural module
// facts. It is computed once per transform and never re-derived from
// textual scans.
func Classify(mod *jsparse.Module, compiledExt string) Classification {
	if mod.ComponentMarker {
		return Component
	}
	if mod.MountMarker {
		return InitFile
	}
	if mod.TopLevelCount > 0 {
		ratio := float64(mod.ImportExportCount) / float64(mod.TopLevelCount)
		if ratio >= coreDefinitionRatio && mod.HasLocalImport(compiledExt) {
			return CoreDefinition
		}
	}
	return Plain
}
