package jsparse

// ImportKind classifies an import specifier.
type ImportKind string

const (
	ImportDefault   ImportKind = "default"
	ImportNamespace ImportKind = "namespace"
	ImportNamed     ImportKind = "named"
)

// ImportSpecifier is one local binding introduced by an import statement.
// ExportedName carries the original export name for aliased named imports
// so a reload can re-destructure correctly.
type ImportSpecifier struct {
	LocalName    string     `json:"localName"`
	ExportedName string     `json:"exportedName,omitempty"`
	Kind         ImportKind `json:"kind"`
}

// ImportDecl is a top-level import statement.
type ImportDecl struct {
	SourcePath string            `json:"sourcePath"`
	Specifiers []ImportSpecifier `json:"specifiers"`
	StartByte  uint              `json:"startByte"`
	EndByte    uint              `json:"endByte"`
}

// ExportDecl is a top-level export statement, recorded by position so the
// transformer can split export code from body code.
type ExportDecl struct {
	StartByte uint `json:"startByte"`
	EndByte   uint `json:"endByte"`
}

// Module holds the structural facts the pipeline needs about one parsed
// module: its imports and exports, top-level shape, and the framework
// markers used for file classification. It is deliberately source-free and
// JSON-serializable so the AST cache can estimate its size.
type Module struct {
	Path              string          `json:"path"`
	TopLevelCount     int             `json:"topLevelCount"`
	ImportExportCount int             `json:"importExportCount"`
	Imports           []ImportDecl    `json:"imports"`
	Exports           []ExportDecl    `json:"exports"`
	ComponentMarker   bool            `json:"componentMarker"`
	MountMarker       bool            `json:"mountMarker"`
	ResolutionRefs    map[string]bool `json:"resolutionRefs,omitempty"`
}

// HasLocalImport reports whether any import targets a path ending in ext
// that is not a bare package name.
func (m *Module) HasLocalImport(ext string) bool {
	for _, imp := range m.Imports {
		if IsLocalPath(imp.SourcePath, ext) {
			return true
		}
	}
	return false
}

// IsLocalPath reports whether source names a local compiled module rather
// than an external package.
func IsLocalPath(source, ext string) bool {
	if source == "" {
		return false
	}
	if len(source) < len(ext) || source[len(source)-len(ext):] != ext {
		return false
	}
	return source[0] == '.' || source[0] == '/'
}
