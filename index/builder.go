// Package index builds gitignore-aware, size-annotated trees of filesystem
// subtrees. Directory recursions run on a bounded worker pool; each subtree
// is computed as an owned partial result and merged by its parent, so the
// resulting tree is deterministic for any parallelism setting.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mkoval/dirindex/gitignore"
	"github.com/mkoval/dirindex/types"
)

var (
	// ErrRootInaccessible reports that the root path cannot be indexed at all.
	ErrRootInaccessible = errors.New("root path inaccessible")
	// ErrCancelled reports that the caller's context aborted the build.
	ErrCancelled = errors.New("build cancelled")
)

const (
	errorRootFormat      = "%w: %s: %v"
	errorCancelledFormat = "%w: %v"
)

// Options configures a build.
type Options struct {
	// RespectGitignore excludes entries matched by .gitignore rules from
	// the tree while still counting their bytes toward ancestor sizes.
	RespectGitignore bool
	// FollowSymlinks resolves symbolic links and recurses into link
	// targets, breaking cycles by physical file identity. When false,
	// links are opaque leaves sized by the link itself.
	FollowSymlinks bool
	// MaxParallelism bounds the number of directory scans running
	// concurrently. Values below one select the available hardware
	// parallelism.
	MaxParallelism int
}

// DefaultOptions returns the standard build configuration.
func DefaultOptions() Options {
	return Options{
		RespectGitignore: true,
		FollowSymlinks:   false,
		MaxParallelism:   runtime.GOMAXPROCS(0),
	}
}

// builder holds state shared by one build invocation. The warning list is
// the only cross-branch mutable state and is guarded by a mutex; node
// results are always owned by exactly one goroutine.
type builder struct {
	options       Options
	workerSlots   *semaphore.Weighted
	warningsMutex sync.Mutex
	warnings      []types.Warning
}

// Build indexes the subtree rooted at rootPath and returns its FileNode tree
// together with the non-fatal warnings collected along the way. An
// inaccessible root fails with ErrRootInaccessible; context cancellation
// fails with ErrCancelled and no tree.
func Build(ctx context.Context, rootPath string, options Options) (*types.FileNode, []types.Warning, error) {
	absoluteRootPath, absolutePathError := filepath.Abs(rootPath)
	if absolutePathError != nil {
		return nil, nil, fmt.Errorf(errorRootFormat, ErrRootInaccessible, rootPath, absolutePathError)
	}
	rootInfo, rootStatError := os.Lstat(absoluteRootPath)
	if rootStatError != nil {
		return nil, nil, fmt.Errorf(errorRootFormat, ErrRootInaccessible, rootPath, rootStatError)
	}
	if options.FollowSymlinks && rootInfo.Mode()&os.ModeSymlink != 0 {
		resolvedRootInfo, resolvedStatError := os.Stat(absoluteRootPath)
		if resolvedStatError != nil {
			return nil, nil, fmt.Errorf(errorRootFormat, ErrRootInaccessible, rootPath, resolvedStatError)
		}
		rootInfo = resolvedRootInfo
	}

	parallelism := options.MaxParallelism
	if parallelism < 1 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	activeBuilder := &builder{
		options:     options,
		workerSlots: semaphore.NewWeighted(int64(parallelism)),
	}

	rootName := filepath.Base(absoluteRootPath)
	if !rootInfo.IsDir() {
		rootNode := &types.FileNode{
			Name:      rootName,
			Type:      types.NodeTypeFile,
			SizeBytes: rootInfo.Size(),
		}
		return rootNode, activeBuilder.collectedWarnings(), nil
	}

	chain := gitignore.NewChain(nil)
	if options.RespectGitignore {
		rootSet, loadWarnings := gitignore.LoadDirectoryRules(absoluteRootPath, "")
		activeBuilder.addWarnings(loadWarnings)
		chain = gitignore.NewChain(rootSet)
	}

	rootNode, buildError := activeBuilder.buildDirectory(ctx, absoluteRootPath, "", rootName, chain, identityChainFor(rootInfo, absoluteRootPath, options.FollowSymlinks))
	if buildError != nil {
		return nil, nil, buildError
	}
	return rootNode, activeBuilder.collectedWarnings(), nil
}

// buildDirectory produces the node for one directory. Subdirectory
// recursions run on the worker pool when a slot is free and inline
// otherwise, which bounds parallelism without ever deadlocking the
// recursion.
func (activeBuilder *builder) buildDirectory(
	ctx context.Context,
	absoluteDirectoryPath string,
	rootRelativeDirectory string,
	directoryName string,
	chain *gitignore.Chain,
	visited *identityChain,
) (*types.FileNode, error) {
	if contextError := ctx.Err(); contextError != nil {
		return nil, fmt.Errorf(errorCancelledFormat, ErrCancelled, contextError)
	}

	directoryNode := &types.FileNode{
		Name: directoryName,
		Type: types.NodeTypeDirectory,
	}

	directoryEntries, readDirectoryError := os.ReadDir(absoluteDirectoryPath)
	if readDirectoryError != nil {
		activeBuilder.addWarning(types.Warning{
			Kind:   types.WarningKindAccessDenied,
			Path:   absoluteDirectoryPath,
			Detail: readDirectoryError.Error(),
		})
		directoryNode.ErrorMark = types.ErrorMarkAccessDenied
		return directoryNode, nil
	}

	if activeBuilder.options.RespectGitignore && rootRelativeDirectory != "" {
		deeperSet, loadWarnings := gitignore.LoadDirectoryRules(absoluteDirectoryPath, rootRelativeDirectory)
		activeBuilder.addWarnings(loadWarnings)
		chain = chain.Extend(deeperSet)
	}

	childNodes := make([]*types.FileNode, len(directoryEntries))
	childErrors := make([]error, len(directoryEntries))
	ignoredByteCounts := make([]int64, len(directoryEntries))
	var pendingChildren sync.WaitGroup

	for entryIndex, directoryEntry := range directoryEntries {
		entryName := directoryEntry.Name()
		// The ignore files themselves are policy carriers, not indexed
		// content, while gitignore semantics are in effect.
		if activeBuilder.options.RespectGitignore && entryName == gitignore.FileName {
			continue
		}
		entryRelativePath := joinRelative(rootRelativeDirectory, entryName)
		entryAbsolutePath := filepath.Join(absoluteDirectoryPath, entryName)

		entryInfo, entryIsDirectory, resolveWarning := activeBuilder.resolveEntry(directoryEntry, entryAbsolutePath)
		if resolveWarning != nil {
			activeBuilder.addWarning(*resolveWarning)
			childNodes[entryIndex] = &types.FileNode{
				Name:      entryName,
				Type:      types.NodeTypeFile,
				ErrorMark: resolveWarning.Kind,
			}
			continue
		}

		if activeBuilder.options.RespectGitignore && chain.Ignored(entryRelativePath, entryIsDirectory) {
			ignoredBytes, sumError := activeBuilder.sumEntry(ctx, entryAbsolutePath, entryInfo, entryIsDirectory, visited)
			if sumError != nil {
				childErrors[entryIndex] = sumError
				break
			}
			ignoredByteCounts[entryIndex] = ignoredBytes
			continue
		}

		if !entryIsDirectory {
			childNodes[entryIndex] = &types.FileNode{
				Name:      entryName,
				Type:      types.NodeTypeFile,
				SizeBytes: entryInfo.Size(),
			}
			continue
		}

		childVisited := visited
		if activeBuilder.options.FollowSymlinks {
			entryIdentity := identityOf(entryInfo, entryAbsolutePath)
			if visited.contains(entryIdentity) {
				activeBuilder.addWarning(types.Warning{
					Kind: types.WarningKindCycleDetected,
					Path: entryAbsolutePath,
				})
				childNodes[entryIndex] = &types.FileNode{
					Name:      entryName,
					Type:      types.NodeTypeFile,
					ErrorMark: types.ErrorMarkCycleDetected,
				}
				continue
			}
			childVisited = visited.append(entryIdentity)
		}

		slotIndex := entryIndex
		slotName := entryName
		slotRelative := entryRelativePath
		slotAbsolute := entryAbsolutePath
		slotChain := chain
		if activeBuilder.workerSlots.TryAcquire(1) {
			pendingChildren.Add(1)
			go func() {
				defer pendingChildren.Done()
				defer activeBuilder.workerSlots.Release(1)
				childNodes[slotIndex], childErrors[slotIndex] = activeBuilder.buildDirectory(
					ctx, slotAbsolute, slotRelative, slotName, slotChain, childVisited)
			}()
		} else {
			childNodes[entryIndex], childErrors[entryIndex] = activeBuilder.buildDirectory(
				ctx, slotAbsolute, slotRelative, slotName, slotChain, childVisited)
			if childErrors[entryIndex] != nil {
				break
			}
		}
	}
	pendingChildren.Wait()

	for _, childError := range childErrors {
		if childError != nil {
			return nil, childError
		}
	}

	var retainedChildren []*types.FileNode
	var totalBytes int64
	var ignoredBytes int64
	for entryIndex, childNode := range childNodes {
		ignoredBytes += ignoredByteCounts[entryIndex]
		if childNode == nil {
			continue
		}
		totalBytes += childNode.SizeBytes
		retainedChildren = append(retainedChildren, childNode)
	}
	sort.Slice(retainedChildren, func(leftIndex, rightIndex int) bool {
		return retainedChildren[leftIndex].Name < retainedChildren[rightIndex].Name
	})

	directoryNode.Children = retainedChildren
	directoryNode.SizeBytes = totalBytes + ignoredBytes
	directoryNode.IgnoredBytes = ignoredBytes
	return directoryNode, nil
}

// resolveEntry stats one directory entry and classifies it. Symlinks are
// resolved only when FollowSymlinks is set; otherwise the link itself is
// the entry. A non-nil warning means the entry could not be inspected.
func (activeBuilder *builder) resolveEntry(directoryEntry os.DirEntry, entryAbsolutePath string) (os.FileInfo, bool, *types.Warning) {
	entryInfo, infoError := directoryEntry.Info()
	if infoError != nil {
		return nil, false, entryWarning(entryAbsolutePath, infoError)
	}
	if entryInfo.Mode()&os.ModeSymlink == 0 {
		return entryInfo, entryInfo.IsDir(), nil
	}
	if !activeBuilder.options.FollowSymlinks {
		return entryInfo, false, nil
	}
	resolvedInfo, statError := os.Stat(entryAbsolutePath)
	if statError != nil {
		return nil, false, entryWarning(entryAbsolutePath, statError)
	}
	return resolvedInfo, resolvedInfo.IsDir(), nil
}

// sumEntry returns the total byte size of an entry excluded by gitignore
// rules. Files contribute their length; directories are traversed in
// sum-only mode without materializing nodes.
func (activeBuilder *builder) sumEntry(ctx context.Context, entryAbsolutePath string, entryInfo os.FileInfo, entryIsDirectory bool, visited *identityChain) (int64, error) {
	if !entryIsDirectory {
		return entryInfo.Size(), nil
	}
	branchVisited := visited
	if activeBuilder.options.FollowSymlinks {
		entryIdentity := identityOf(entryInfo, entryAbsolutePath)
		if visited.contains(entryIdentity) {
			activeBuilder.addWarning(types.Warning{
				Kind: types.WarningKindCycleDetected,
				Path: entryAbsolutePath,
			})
			return 0, nil
		}
		branchVisited = visited.append(entryIdentity)
	}
	return activeBuilder.sumDirectory(ctx, entryAbsolutePath, branchVisited)
}

// sumDirectory totals the bytes of every file beneath a directory. It
// shares the entry resolution and cycle guard of the full build but applies
// no further gitignore evaluation: once a subtree is excluded, all of it is.
func (activeBuilder *builder) sumDirectory(ctx context.Context, absoluteDirectoryPath string, visited *identityChain) (int64, error) {
	if contextError := ctx.Err(); contextError != nil {
		return 0, fmt.Errorf(errorCancelledFormat, ErrCancelled, contextError)
	}

	directoryEntries, readDirectoryError := os.ReadDir(absoluteDirectoryPath)
	if readDirectoryError != nil {
		activeBuilder.addWarning(types.Warning{
			Kind:   types.WarningKindAccessDenied,
			Path:   absoluteDirectoryPath,
			Detail: readDirectoryError.Error(),
		})
		return 0, nil
	}

	var totalBytes int64
	for _, directoryEntry := range directoryEntries {
		entryAbsolutePath := filepath.Join(absoluteDirectoryPath, directoryEntry.Name())
		entryInfo, entryIsDirectory, resolveWarning := activeBuilder.resolveEntry(directoryEntry, entryAbsolutePath)
		if resolveWarning != nil {
			activeBuilder.addWarning(*resolveWarning)
			continue
		}
		if !entryIsDirectory {
			totalBytes += entryInfo.Size()
			continue
		}
		if activeBuilder.options.FollowSymlinks {
			entryIdentity := identityOf(entryInfo, entryAbsolutePath)
			if visited.contains(entryIdentity) {
				activeBuilder.addWarning(types.Warning{
					Kind: types.WarningKindCycleDetected,
					Path: entryAbsolutePath,
				})
				continue
			}
			subtreeBytes, sumError := activeBuilder.sumDirectory(ctx, entryAbsolutePath, visited.append(entryIdentity))
			if sumError != nil {
				return 0, sumError
			}
			totalBytes += subtreeBytes
			continue
		}
		subtreeBytes, sumError := activeBuilder.sumDirectory(ctx, entryAbsolutePath, visited)
		if sumError != nil {
			return 0, sumError
		}
		totalBytes += subtreeBytes
	}
	return totalBytes, nil
}

// entryWarning classifies an entry-level I/O failure.
func entryWarning(entryAbsolutePath string, ioError error) *types.Warning {
	warningKind := types.WarningKindAccessDenied
	if os.IsNotExist(ioError) {
		warningKind = types.WarningKindNotFound
	}
	return &types.Warning{
		Kind:   warningKind,
		Path:   entryAbsolutePath,
		Detail: ioError.Error(),
	}
}

// joinRelative appends a name to a root-relative slash path.
func joinRelative(rootRelativeDirectory string, entryName string) string {
	if rootRelativeDirectory == "" {
		return entryName
	}
	return path.Join(rootRelativeDirectory, entryName)
}

func (activeBuilder *builder) addWarning(warning types.Warning) {
	activeBuilder.warningsMutex.Lock()
	defer activeBuilder.warningsMutex.Unlock()
	activeBuilder.warnings = append(activeBuilder.warnings, warning)
}

func (activeBuilder *builder) addWarnings(warnings []types.Warning) {
	if len(warnings) == 0 {
		return
	}
	activeBuilder.warningsMutex.Lock()
	defer activeBuilder.warningsMutex.Unlock()
	activeBuilder.warnings = append(activeBuilder.warnings, warnings...)
}

func (activeBuilder *builder) collectedWarnings() []types.Warning {
	activeBuilder.warningsMutex.Lock()
	defer activeBuilder.warningsMutex.Unlock()
	warnings := make([]types.Warning, len(activeBuilder.warnings))
	copy(warnings, activeBuilder.warnings)
	return warnings
}
