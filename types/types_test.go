package types_test

import (
	"testing"

	"github.com/mkoval/dirindex/types"
)

func buildComparableTree() *types.FileNode {
	return &types.FileNode{
		Name:      "root",
		Type:      types.NodeTypeDirectory,
		SizeBytes: 30,
		Children: []*types.FileNode{
			{Name: "a", Type: types.NodeTypeFile, SizeBytes: 10},
			{Name: "b", Type: types.NodeTypeFile, SizeBytes: 20},
		},
	}
}

func TestFileNodeEqual(testingHandle *testing.T) {
	leftTree := buildComparableTree()
	rightTree := buildComparableTree()
	if !leftTree.Equal(rightTree) {
		testingHandle.Fatalf("identical trees must be equal")
	}

	rightTree.Children[1].SizeBytes = 21
	if leftTree.Equal(rightTree) {
		testingHandle.Fatalf("size difference must break equality")
	}

	rightTree = buildComparableTree()
	rightTree.Children[0], rightTree.Children[1] = rightTree.Children[1], rightTree.Children[0]
	if leftTree.Equal(rightTree) {
		testingHandle.Fatalf("child order is part of the model equality")
	}

	rightTree = buildComparableTree()
	rightTree.IgnoredBytes = 5
	if leftTree.Equal(rightTree) {
		testingHandle.Fatalf("ignored byte difference must break equality")
	}
}

func TestFileNodeEqualNilHandling(testingHandle *testing.T) {
	var nilNode *types.FileNode
	if !nilNode.Equal(nil) {
		testingHandle.Fatalf("two nil nodes are equal")
	}
	if nilNode.Equal(buildComparableTree()) {
		testingHandle.Fatalf("nil differs from a populated node")
	}
}

func TestIsDirectory(testingHandle *testing.T) {
	directoryNode := &types.FileNode{Type: types.NodeTypeDirectory}
	fileNode := &types.FileNode{Type: types.NodeTypeFile}
	var nilNode *types.FileNode
	if !directoryNode.IsDirectory() || fileNode.IsDirectory() || nilNode.IsDirectory() {
		testingHandle.Fatalf("unexpected IsDirectory classification")
	}
}
