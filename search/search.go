// Package search ranks the nodes of a built index tree against approximate
// name queries. An engine flattens its tree once, on first use, and serves
// any number of concurrent queries from that cached index.
package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/mkoval/dirindex/types"
)

// Scoring weights. A query character that lands in the name at all earns
// the base score; adjacency, closeness to the name's start, and a short
// name relative to the query add to it.
const (
	matchedCharacterScore = 10
	adjacencyBonus        = 15
	startBonusCeiling     = 30
	startBonusSlope       = 3
	lengthRatioScale      = 100
)

const pathSeparator = "/"

// Result is one ranked match.
type Result struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	SizeBytes int64  `json:"sizeBytes"`
	Score     int    `json:"score"`
}

// indexEntry is one flattened tree node prepared for matching.
type indexEntry struct {
	fullPath  string
	lowerName []rune
	node      *types.FileNode
}

// Engine serves fuzzy queries over one immutable tree.
type Engine struct {
	tree      *types.FileNode
	indexOnce sync.Once
	entries   []indexEntry
}

// NewEngine binds an engine to a built tree. The flattened index is
// constructed lazily on the first query.
func NewEngine(tree *types.FileNode) *Engine {
	return &Engine{tree: tree}
}

// Search returns matches for the query ordered by descending score, with
// ties broken by shorter full path and then lexicographic path order. A
// limit of zero or less returns every match. An empty query matches
// nothing.
func (engine *Engine) Search(query string, limit int) []Result {
	if query == "" || engine.tree == nil {
		return nil
	}
	engine.indexOnce.Do(engine.buildIndex)

	queryRunes := []rune(strings.ToLower(query))
	var results []Result
	for _, entry := range engine.entries {
		score, matched := scoreName(entry.lowerName, queryRunes)
		if !matched {
			continue
		}
		results = append(results, Result{
			Path:      entry.fullPath,
			Type:      entry.node.Type,
			SizeBytes: entry.node.SizeBytes,
			Score:     score,
		})
	}

	sort.Slice(results, func(leftIndex, rightIndex int) bool {
		left, right := results[leftIndex], results[rightIndex]
		if left.Score != right.Score {
			return left.Score > right.Score
		}
		if len(left.Path) != len(right.Path) {
			return len(left.Path) < len(right.Path)
		}
		return left.Path < right.Path
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Query runs a one-off search without retaining a cached index. Callers
// issuing repeated queries should hold an Engine instead.
func Query(tree *types.FileNode, query string, limit int) []Result {
	return NewEngine(tree).Search(query, limit)
}

// buildIndex flattens the tree into (path, name, node) entries.
func (engine *Engine) buildIndex() {
	engine.flatten(engine.tree, "")
}

func (engine *Engine) flatten(node *types.FileNode, parentPath string) {
	if node == nil {
		return
	}
	fullPath := node.Name
	if parentPath != "" {
		fullPath = parentPath + pathSeparator + node.Name
	}
	engine.entries = append(engine.entries, indexEntry{
		fullPath:  fullPath,
		lowerName: []rune(strings.ToLower(node.Name)),
		node:      node,
	})
	for _, childNode := range node.Children {
		engine.flatten(childNode, fullPath)
	}
}

// scoreName matches the query as a subsequence of the name and scores the
// leftmost such embedding. Consecutive matched characters earn the
// adjacency bonus, matches near the start of the name earn a position
// bonus, and shorter names earn a larger length-ratio term, so an exact
// name always outranks any strict superstring.
func scoreName(lowerName []rune, lowerQuery []rune) (int, bool) {
	if len(lowerQuery) == 0 || len(lowerQuery) > len(lowerName) {
		return 0, false
	}

	score := 0
	previousPosition := -2
	namePosition := 0
	firstPosition := -1
	for _, queryRune := range lowerQuery {
		found := false
		for ; namePosition < len(lowerName); namePosition++ {
			if lowerName[namePosition] == queryRune {
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
		score += matchedCharacterScore
		if namePosition == previousPosition+1 {
			score += adjacencyBonus
		}
		if firstPosition < 0 {
			firstPosition = namePosition
		}
		previousPosition = namePosition
		namePosition++
	}

	startBonus := startBonusCeiling - startBonusSlope*firstPosition
	if startBonus > 0 {
		score += startBonus
	}
	score += len(lowerQuery) * lengthRatioScale / len(lowerName)
	return score, true
}
