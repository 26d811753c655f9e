// Package types defines every cross-package data structure used by dirindex.
package types

// Node type values stored on FileNode.Type.
const (
	NodeTypeFile      = "file"
	NodeTypeDirectory = "directory"
)

// Output format selectors accepted by the CLI.
const (
	FormatRaw  = "raw"
	FormatJSON = "json"
)

// Error marks attached to nodes whose entries could not be fully indexed.
const (
	ErrorMarkAccessDenied  = "access_denied"
	ErrorMarkNotFound      = "not_found"
	ErrorMarkCycleDetected = "cycle_detected"
)

// Warning kinds reported alongside a successful build.
const (
	WarningKindAccessDenied     = "access_denied"
	WarningKindNotFound         = "not_found"
	WarningKindCycleDetected    = "cycle_detected"
	WarningKindInvalidGitignore = "invalid_gitignore"
)

// FileNode represents one filesystem entry in a built index tree.
//
// SizeBytes for a directory counts every regular file beneath it on disk,
// including files excluded by gitignore rules. IgnoredBytes records the
// portion of SizeBytes contributed by excluded entries at or below the
// directory, so SizeBytes minus the children's SizeBytes always equals
// IgnoredBytes. Children holds only the non-ignored direct descendants,
// sorted by name. A tree is immutable once returned by the builder.
type FileNode struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	SizeBytes    int64       `json:"sizeBytes"`
	IgnoredBytes int64       `json:"ignoredBytes,omitempty"`
	ErrorMark    string      `json:"errorMark,omitempty"`
	Children     []*FileNode `json:"children,omitempty"`
}

// IsDirectory reports whether the node represents a directory entry.
func (node *FileNode) IsDirectory() bool {
	return node != nil && node.Type == NodeTypeDirectory
}

// Equal reports whether two trees are identical under the model's equality:
// same names, types, sizes, ignored byte counts, error marks, and child
// order at every level.
func (node *FileNode) Equal(other *FileNode) bool {
	if node == nil || other == nil {
		return node == other
	}
	if node.Name != other.Name ||
		node.Type != other.Type ||
		node.SizeBytes != other.SizeBytes ||
		node.IgnoredBytes != other.IgnoredBytes ||
		node.ErrorMark != other.ErrorMark {
		return false
	}
	if len(node.Children) != len(other.Children) {
		return false
	}
	for childIndex, child := range node.Children {
		if !child.Equal(other.Children[childIndex]) {
			return false
		}
	}
	return true
}

// Warning describes a non-fatal problem encountered during a build.
type Warning struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// ValidatedPath is an absolute input path that already passed existence checks.
type ValidatedPath struct {
	AbsolutePath string
	IsDir        bool
}
