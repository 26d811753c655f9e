package index_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkoval/dirindex/index"
	"github.com/mkoval/dirindex/types"
)

func writeFile(testingHandle *testing.T, filePath string, byteCount int) {
	testingHandle.Helper()
	if makeDirError := os.MkdirAll(filepath.Dir(filePath), 0o755); makeDirError != nil {
		testingHandle.Fatalf("mkdir for %s: %v", filePath, makeDirError)
	}
	content := make([]byte, byteCount)
	if writeError := os.WriteFile(filePath, content, 0o644); writeError != nil {
		testingHandle.Fatalf("writing %s: %v", filePath, writeError)
	}
}

func findChild(node *types.FileNode, childName string) *types.FileNode {
	for _, childNode := range node.Children {
		if childNode.Name == childName {
			return childNode
		}
	}
	return nil
}

// verifySizeInvariant checks that every directory's size equals the sum of
// its children's sizes plus its ignored byte count.
func verifySizeInvariant(testingHandle *testing.T, node *types.FileNode) {
	testingHandle.Helper()
	if !node.IsDirectory() {
		return
	}
	var childrenTotal int64
	for _, childNode := range node.Children {
		childrenTotal += childNode.SizeBytes
		verifySizeInvariant(testingHandle, childNode)
	}
	if node.SizeBytes != childrenTotal+node.IgnoredBytes {
		testingHandle.Fatalf("size invariant violated at %s: size %d, children %d, ignored %d",
			node.Name, node.SizeBytes, childrenTotal, node.IgnoredBytes)
	}
}

func TestBuildExampleScenario(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "a.txt"), 10)
	writeFile(testingHandle, filepath.Join(rootDirectory, "b.txt"), 20)
	writeFile(testingHandle, filepath.Join(rootDirectory, "sub", "c.txt"), 5)
	if writeError := os.WriteFile(filepath.Join(rootDirectory, ".gitignore"), []byte("sub/\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing .gitignore: %v", writeError)
	}

	rootNode, warnings, buildError := index.Build(context.Background(), rootDirectory, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	if len(warnings) != 0 {
		testingHandle.Fatalf("expected no warnings, got %v", warnings)
	}
	if rootNode.SizeBytes != 35 {
		testingHandle.Fatalf("expected root size 35, got %d", rootNode.SizeBytes)
	}
	if rootNode.IgnoredBytes != 5 {
		testingHandle.Fatalf("expected 5 ignored bytes, got %d", rootNode.IgnoredBytes)
	}
	if len(rootNode.Children) != 2 {
		testingHandle.Fatalf("expected children [a.txt b.txt], got %d children", len(rootNode.Children))
	}
	if rootNode.Children[0].Name != "a.txt" || rootNode.Children[1].Name != "b.txt" {
		testingHandle.Fatalf("unexpected child ordering: %s, %s", rootNode.Children[0].Name, rootNode.Children[1].Name)
	}
	if rootNode.Children[0].SizeBytes != 10 || rootNode.Children[1].SizeBytes != 20 {
		testingHandle.Fatalf("unexpected child sizes: %d, %d", rootNode.Children[0].SizeBytes, rootNode.Children[1].SizeBytes)
	}
	if findChild(rootNode, "sub") != nil {
		testingHandle.Fatalf("ignored directory sub must not appear in children")
	}
	verifySizeInvariant(testingHandle, rootNode)
}

func TestBuildDeterminismAcrossWorkerCounts(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "alpha", "one.bin"), 100)
	writeFile(testingHandle, filepath.Join(rootDirectory, "alpha", "two.bin"), 200)
	writeFile(testingHandle, filepath.Join(rootDirectory, "beta", "nested", "three.bin"), 300)
	writeFile(testingHandle, filepath.Join(rootDirectory, "gamma", "four.bin"), 400)
	writeFile(testingHandle, filepath.Join(rootDirectory, "top.bin"), 500)

	parallelismValues := []int{1, 2, 8}
	var referenceTree *types.FileNode
	for _, parallelism := range parallelismValues {
		buildOptions := index.DefaultOptions()
		buildOptions.MaxParallelism = parallelism
		builtTree, _, buildError := index.Build(context.Background(), rootDirectory, buildOptions)
		if buildError != nil {
			testingHandle.Fatalf("Build with parallelism %d: %v", parallelism, buildError)
		}
		if referenceTree == nil {
			referenceTree = builtTree
			continue
		}
		if !referenceTree.Equal(builtTree) {
			testingHandle.Fatalf("tree built with parallelism %d differs from reference", parallelism)
		}
	}
	if referenceTree.SizeBytes != 1500 {
		testingHandle.Fatalf("expected total 1500 bytes, got %d", referenceTree.SizeBytes)
	}
}

func TestBuildIgnoredSubtreeStillSized(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "kept.txt"), 7)
	writeFile(testingHandle, filepath.Join(rootDirectory, "node_modules", "dep", "lib.js"), 1000)
	writeFile(testingHandle, filepath.Join(rootDirectory, "node_modules", "dep", "extra.js"), 500)
	if writeError := os.WriteFile(filepath.Join(rootDirectory, ".gitignore"), []byte("node_modules/\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing .gitignore: %v", writeError)
	}

	rootNode, _, buildError := index.Build(context.Background(), rootDirectory, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	if findChild(rootNode, "node_modules") != nil {
		testingHandle.Fatalf("node_modules must not be materialized")
	}
	if rootNode.SizeBytes != 1507 {
		testingHandle.Fatalf("expected ignored bytes to count toward root size, got %d", rootNode.SizeBytes)
	}
	if rootNode.IgnoredBytes != 1500 {
		testingHandle.Fatalf("expected 1500 ignored bytes, got %d", rootNode.IgnoredBytes)
	}
	verifySizeInvariant(testingHandle, rootNode)
}

func TestBuildDeeperNegationRescuesFile(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "sub", "keep.log"), 11)
	writeFile(testingHandle, filepath.Join(rootDirectory, "sub", "drop.log"), 13)
	if writeError := os.WriteFile(filepath.Join(rootDirectory, ".gitignore"), []byte("*.log\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing root .gitignore: %v", writeError)
	}
	if writeError := os.WriteFile(filepath.Join(rootDirectory, "sub", ".gitignore"), []byte("!keep.log\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing nested .gitignore: %v", writeError)
	}

	rootNode, _, buildError := index.Build(context.Background(), rootDirectory, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	subNode := findChild(rootNode, "sub")
	if subNode == nil {
		testingHandle.Fatalf("expected sub directory to be materialized")
	}
	if findChild(subNode, "keep.log") == nil {
		testingHandle.Fatalf("expected keep.log to be rescued by the deeper negation")
	}
	if findChild(subNode, "drop.log") != nil {
		testingHandle.Fatalf("expected drop.log to stay ignored")
	}
	if subNode.SizeBytes != 24 {
		testingHandle.Fatalf("expected sub size 24 (11 kept + 13 ignored), got %d", subNode.SizeBytes)
	}
	if subNode.IgnoredBytes != 13 {
		testingHandle.Fatalf("expected 13 ignored bytes in sub, got %d", subNode.IgnoredBytes)
	}
	verifySizeInvariant(testingHandle, rootNode)
}

func TestBuildWithoutGitignoreMaterializesEverything(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "kept.txt"), 3)
	writeFile(testingHandle, filepath.Join(rootDirectory, "skipped", "data.bin"), 9)
	if writeError := os.WriteFile(filepath.Join(rootDirectory, ".gitignore"), []byte("skipped/\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing .gitignore: %v", writeError)
	}

	buildOptions := index.DefaultOptions()
	buildOptions.RespectGitignore = false
	rootNode, _, buildError := index.Build(context.Background(), rootDirectory, buildOptions)
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	if findChild(rootNode, "skipped") == nil {
		testingHandle.Fatalf("expected skipped directory to be materialized when gitignore is off")
	}
	if findChild(rootNode, ".gitignore") == nil {
		testingHandle.Fatalf("expected .gitignore to appear as a regular file when gitignore is off")
	}
	if rootNode.IgnoredBytes != 0 {
		testingHandle.Fatalf("expected no ignored bytes, got %d", rootNode.IgnoredBytes)
	}
	verifySizeInvariant(testingHandle, rootNode)
}

func TestBuildSymlinkIsOpaqueLeafByDefault(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "target", "payload.bin"), 100)
	linkPath := filepath.Join(rootDirectory, "link")
	if symlinkError := os.Symlink(filepath.Join(rootDirectory, "target"), linkPath); symlinkError != nil {
		testingHandle.Skipf("symlinks unavailable: %v", symlinkError)
	}

	rootNode, warnings, buildError := index.Build(context.Background(), rootDirectory, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	if len(warnings) != 0 {
		testingHandle.Fatalf("expected no warnings, got %v", warnings)
	}
	linkNode := findChild(rootNode, "link")
	if linkNode == nil {
		testingHandle.Fatalf("expected link to appear as a leaf")
	}
	if linkNode.Type != types.NodeTypeFile {
		testingHandle.Fatalf("expected opaque symlink to be typed as a file, got %s", linkNode.Type)
	}
	if len(linkNode.Children) != 0 {
		testingHandle.Fatalf("opaque symlink must not be recursed into")
	}
}

func TestBuildSymlinkCycleDetected(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	nestedDirectory := filepath.Join(rootDirectory, "nested")
	writeFile(testingHandle, filepath.Join(nestedDirectory, "data.bin"), 42)
	if symlinkError := os.Symlink(rootDirectory, filepath.Join(nestedDirectory, "loop")); symlinkError != nil {
		testingHandle.Skipf("symlinks unavailable: %v", symlinkError)
	}

	buildOptions := index.DefaultOptions()
	buildOptions.FollowSymlinks = true
	rootNode, warnings, buildError := index.Build(context.Background(), rootDirectory, buildOptions)
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}

	cycleWarningSeen := false
	for _, warning := range warnings {
		if warning.Kind == types.WarningKindCycleDetected {
			cycleWarningSeen = true
		}
	}
	if !cycleWarningSeen {
		testingHandle.Fatalf("expected a cycle warning, got %v", warnings)
	}

	nestedNode := findChild(rootNode, "nested")
	if nestedNode == nil {
		testingHandle.Fatalf("expected nested directory node")
	}
	loopNode := findChild(nestedNode, "loop")
	if loopNode == nil {
		testingHandle.Fatalf("expected the cyclic link to appear as a marked leaf")
	}
	if loopNode.ErrorMark != types.ErrorMarkCycleDetected {
		testingHandle.Fatalf("expected cycle mark on loop node, got %q", loopNode.ErrorMark)
	}
	if loopNode.SizeBytes != 0 {
		testingHandle.Fatalf("cyclic link must contribute zero bytes, got %d", loopNode.SizeBytes)
	}
}

func TestBuildIgnoredSymlinkCycleContributesNothing(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "data.bin"), 100)
	if writeError := os.WriteFile(filepath.Join(rootDirectory, ".gitignore"), []byte("loop\n"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing .gitignore: %v", writeError)
	}
	if symlinkError := os.Symlink(rootDirectory, filepath.Join(rootDirectory, "loop")); symlinkError != nil {
		testingHandle.Skipf("symlinks unavailable: %v", symlinkError)
	}

	buildOptions := index.DefaultOptions()
	buildOptions.FollowSymlinks = true
	rootNode, warnings, buildError := index.Build(context.Background(), rootDirectory, buildOptions)
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}

	cycleWarningSeen := false
	for _, warning := range warnings {
		if warning.Kind == types.WarningKindCycleDetected {
			cycleWarningSeen = true
		}
	}
	if !cycleWarningSeen {
		testingHandle.Fatalf("expected a cycle warning, got %v", warnings)
	}
	if rootNode.SizeBytes != 100 {
		testingHandle.Fatalf("expected root size 100, got %d", rootNode.SizeBytes)
	}
	if rootNode.IgnoredBytes != 0 {
		testingHandle.Fatalf("expected zero ignored bytes for the cyclic link, got %d", rootNode.IgnoredBytes)
	}
	verifySizeInvariant(testingHandle, rootNode)
}

func TestBuildCancelledContext(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeFile(testingHandle, filepath.Join(rootDirectory, "a.txt"), 1)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	rootNode, _, buildError := index.Build(cancelledContext, rootDirectory, index.DefaultOptions())
	if rootNode != nil {
		testingHandle.Fatalf("expected no tree on cancellation")
	}
	if !errors.Is(buildError, index.ErrCancelled) {
		testingHandle.Fatalf("expected ErrCancelled, got %v", buildError)
	}
}

func TestBuildRootInaccessible(testingHandle *testing.T) {
	missingPath := filepath.Join(testingHandle.TempDir(), "does-not-exist")
	rootNode, _, buildError := index.Build(context.Background(), missingPath, index.DefaultOptions())
	if rootNode != nil {
		testingHandle.Fatalf("expected no tree for a missing root")
	}
	if !errors.Is(buildError, index.ErrRootInaccessible) {
		testingHandle.Fatalf("expected ErrRootInaccessible, got %v", buildError)
	}
}

func TestBuildUnreadableDirectoryWarns(testingHandle *testing.T) {
	if os.Geteuid() == 0 {
		testingHandle.Skip("permission checks do not apply to root")
	}
	rootDirectory := testingHandle.TempDir()
	lockedDirectory := filepath.Join(rootDirectory, "locked")
	writeFile(testingHandle, filepath.Join(lockedDirectory, "hidden.bin"), 64)
	if chmodError := os.Chmod(lockedDirectory, 0o000); chmodError != nil {
		testingHandle.Fatalf("chmod: %v", chmodError)
	}
	testingHandle.Cleanup(func() {
		_ = os.Chmod(lockedDirectory, 0o755)
	})

	rootNode, warnings, buildError := index.Build(context.Background(), rootDirectory, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("entry-level failures must not abort the build: %v", buildError)
	}
	accessWarningSeen := false
	for _, warning := range warnings {
		if warning.Kind == types.WarningKindAccessDenied {
			accessWarningSeen = true
		}
	}
	if !accessWarningSeen {
		testingHandle.Fatalf("expected an access warning, got %v", warnings)
	}
	lockedNode := findChild(rootNode, "locked")
	if lockedNode == nil {
		testingHandle.Fatalf("expected the unreadable directory to appear with an error mark")
	}
	if lockedNode.ErrorMark != types.ErrorMarkAccessDenied {
		testingHandle.Fatalf("expected access mark, got %q", lockedNode.ErrorMark)
	}
	if lockedNode.SizeBytes != 0 {
		testingHandle.Fatalf("unreadable directory must report zero bytes, got %d", lockedNode.SizeBytes)
	}
}

func TestBuildRootIsFile(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	filePath := filepath.Join(rootDirectory, "single.bin")
	writeFile(testingHandle, filePath, 21)

	rootNode, warnings, buildError := index.Build(context.Background(), filePath, index.DefaultOptions())
	if buildError != nil {
		testingHandle.Fatalf("Build error: %v", buildError)
	}
	if len(warnings) != 0 {
		testingHandle.Fatalf("expected no warnings, got %v", warnings)
	}
	if rootNode.Type != types.NodeTypeFile || rootNode.SizeBytes != 21 {
		testingHandle.Fatalf("unexpected file root: %+v", rootNode)
	}
}
