// Package serial converts FileNode trees to and from a self-describing,
// versioned byte form. The version token is examined before the tree is
// decoded so incompatible payloads are rejected early.
package serial

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkoval/dirindex/types"
)

// FormatVersion is the version token written into every serialized tree.
const FormatVersion = 1

var (
	// ErrVersionMismatch reports a payload written by an incompatible format version.
	ErrVersionMismatch = errors.New("serialized tree version mismatch")
	// ErrCorrupt reports a truncated or malformed payload.
	ErrCorrupt = errors.New("serialized tree corrupt")
)

const (
	errorVersionFormat   = "%w: payload version %d, supported version %d"
	errorDecodeFormat    = "%w: %v"
	errorMissingRoot     = "%w: missing root node"
	errorInvalidShape    = "%w: %s"
	errorNilTreeMessage  = "cannot serialize nil tree"
	shapeFileChildren    = "file node %q has children"
	shapeDuplicateChild  = "directory %q has duplicate child name %q"
	shapeMissingNodeType = "node %q has unknown type %q"
)

// envelope is the persisted wire shape.
type envelope struct {
	Version int             `json:"version"`
	Root    *types.FileNode `json:"root"`
}

// versionProbe decodes only the version token of a payload.
type versionProbe struct {
	Version int `json:"version"`
}

// Serialize encodes a tree into its persisted byte form.
func Serialize(tree *types.FileNode) ([]byte, error) {
	if tree == nil {
		return nil, errors.New(errorNilTreeMessage)
	}
	payload, marshalError := json.Marshal(envelope{Version: FormatVersion, Root: tree})
	if marshalError != nil {
		return nil, marshalError
	}
	return payload, nil
}

// Deserialize decodes a payload produced by Serialize. Truncated or
// malformed input fails with ErrCorrupt; a foreign version token fails with
// ErrVersionMismatch. A partial tree is never returned.
func Deserialize(payload []byte) (*types.FileNode, error) {
	var probe versionProbe
	if probeError := json.Unmarshal(payload, &probe); probeError != nil {
		return nil, fmt.Errorf(errorDecodeFormat, ErrCorrupt, probeError)
	}
	if probe.Version != FormatVersion {
		return nil, fmt.Errorf(errorVersionFormat, ErrVersionMismatch, probe.Version, FormatVersion)
	}

	var decoded envelope
	if decodeError := json.Unmarshal(payload, &decoded); decodeError != nil {
		return nil, fmt.Errorf(errorDecodeFormat, ErrCorrupt, decodeError)
	}
	if decoded.Root == nil {
		return nil, fmt.Errorf(errorMissingRoot, ErrCorrupt)
	}
	if shapeError := validateShape(decoded.Root); shapeError != "" {
		return nil, fmt.Errorf(errorInvalidShape, ErrCorrupt, shapeError)
	}
	return decoded.Root, nil
}

// validateShape checks the decoded tree against the model invariants that
// the wire format cannot express on its own. It returns an empty string for
// a well-formed tree and a description of the first violation otherwise.
func validateShape(node *types.FileNode) string {
	switch node.Type {
	case types.NodeTypeFile:
		if len(node.Children) > 0 {
			return fmt.Sprintf(shapeFileChildren, node.Name)
		}
	case types.NodeTypeDirectory:
		seenNames := make(map[string]struct{}, len(node.Children))
		for _, childNode := range node.Children {
			if _, duplicate := seenNames[childNode.Name]; duplicate {
				return fmt.Sprintf(shapeDuplicateChild, node.Name, childNode.Name)
			}
			seenNames[childNode.Name] = struct{}{}
			if violation := validateShape(childNode); violation != "" {
				return violation
			}
		}
	default:
		return fmt.Sprintf(shapeMissingNodeType, node.Name, node.Type)
	}
	return ""
}
