// Package output renders built trees and search results for the terminal.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mkoval/dirindex/internal/utils"
	"github.com/mkoval/dirindex/search"
	"github.com/mkoval/dirindex/types"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "

	treeHeaderFormat      = "%s (%s"
	treeIgnoredSuffix     = ", %s ignored"
	directoryEntryFormat  = "%s%s%s/ (%s)\n"
	fileEntryFormat       = "%s%s%s (%s)\n"
	markedEntryFormat     = "%s%s%s [%s]\n"
	searchResultFormat    = "%4d  %s (%s)\n"
	searchNoMatchesOutput = "(no matches)\n"
)

// RenderTreeJSON returns the tree as indented JSON.
func RenderTreeJSON(rootNode *types.FileNode) (string, error) {
	jsonData, marshalError := json.MarshalIndent(rootNode, indentPrefix, indentSpacer)
	if marshalError != nil {
		return "", fmt.Errorf("marshal tree to JSON: %w", marshalError)
	}
	return string(jsonData), nil
}

// RenderTreeRaw returns the tree in box-drawing text form, headed by the
// root path and its aggregate size.
func RenderTreeRaw(rootNode *types.FileNode, rootPath string) string {
	var buffer bytes.Buffer
	buffer.WriteString(fmt.Sprintf(treeHeaderFormat, rootPath, utils.FormatFileSize(rootNode.SizeBytes)))
	if rootNode.IgnoredBytes > 0 {
		buffer.WriteString(fmt.Sprintf(treeIgnoredSuffix, utils.FormatFileSize(rootNode.IgnoredBytes)))
	}
	buffer.WriteString(")\n")
	writeRawTreeNode(&buffer, rootNode, "")
	return buffer.String()
}

func writeRawTreeNode(buffer *bytes.Buffer, treeNode *types.FileNode, prefix string) {
	if treeNode == nil || !treeNode.IsDirectory() {
		return
	}
	childCount := len(treeNode.Children)
	for childIndex, childNode := range treeNode.Children {
		connector := treeBranchConnector
		childPrefix := prefix + treeBranchPadding
		if childIndex == childCount-1 {
			connector = treeLastConnector
			childPrefix = prefix + treeLastPadding
		}
		switch {
		case childNode.ErrorMark != "":
			buffer.WriteString(fmt.Sprintf(markedEntryFormat, prefix, connector, childNode.Name, childNode.ErrorMark))
		case childNode.IsDirectory():
			buffer.WriteString(fmt.Sprintf(directoryEntryFormat, prefix, connector, childNode.Name, utils.FormatFileSize(childNode.SizeBytes)))
			writeRawTreeNode(buffer, childNode, childPrefix)
		default:
			buffer.WriteString(fmt.Sprintf(fileEntryFormat, prefix, connector, childNode.Name, utils.FormatFileSize(childNode.SizeBytes)))
		}
	}
}

// RenderSearchJSON returns search results as indented JSON.
func RenderSearchJSON(results []search.Result) (string, error) {
	if len(results) == 0 {
		return "[]", nil
	}
	jsonData, marshalError := json.MarshalIndent(results, indentPrefix, indentSpacer)
	if marshalError != nil {
		return "", fmt.Errorf("marshal search results to JSON: %w", marshalError)
	}
	return string(jsonData), nil
}

// RenderSearchRaw returns search results as score-prefixed text lines.
func RenderSearchRaw(results []search.Result) string {
	if len(results) == 0 {
		return searchNoMatchesOutput
	}
	var buffer bytes.Buffer
	for _, result := range results {
		buffer.WriteString(fmt.Sprintf(searchResultFormat, result.Score, result.Path, utils.FormatFileSize(result.SizeBytes)))
	}
	return buffer.String()
}
