package index

import (
	"os"
	"path/filepath"
	"syscall"
)

// fileIdentity identifies a physical filesystem object. Device and inode
// are used where the platform exposes them; otherwise the resolved path
// stands in.
type fileIdentity struct {
	device       uint64
	inode        uint64
	fallbackPath string
}

// identityOf derives the physical identity of a stat'ed entry.
func identityOf(entryInfo os.FileInfo, entryAbsolutePath string) fileIdentity {
	if statDetails, hasStat := entryInfo.Sys().(*syscall.Stat_t); hasStat && statDetails != nil {
		return fileIdentity{device: uint64(statDetails.Dev), inode: uint64(statDetails.Ino)}
	}
	resolvedPath, resolveError := filepath.EvalSymlinks(entryAbsolutePath)
	if resolveError != nil {
		resolvedPath = filepath.Clean(entryAbsolutePath)
	}
	return fileIdentity{fallbackPath: resolvedPath}
}

// identityChain records the physical identities visited along one traversal
// branch. Chains are immutable: append returns a new link pointing at the
// receiver, so sibling branches never observe each other's entries.
type identityChain struct {
	parent   *identityChain
	identity fileIdentity
}

// identityChainFor seeds the chain with the root's identity when symlink
// following is enabled; otherwise no chain is needed.
func identityChainFor(rootInfo os.FileInfo, absoluteRootPath string, followSymlinks bool) *identityChain {
	if !followSymlinks {
		return nil
	}
	return &identityChain{identity: identityOf(rootInfo, absoluteRootPath)}
}

func (chain *identityChain) append(identity fileIdentity) *identityChain {
	return &identityChain{parent: chain, identity: identity}
}

func (chain *identityChain) contains(identity fileIdentity) bool {
	for link := chain; link != nil; link = link.parent {
		if link.identity == identity {
			return true
		}
	}
	return false
}
