// Package gitignore parses .gitignore files and evaluates their exclusion
// rules hierarchically, the way git scopes them: a file's rules apply to the
// directory containing it and everything beneath, and rules from deeper
// files override rules from shallower ones.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mkoval/dirindex/types"
)

const (
	// FileName is the ignore file discovered in each directory.
	FileName = ".gitignore"

	commentPrefix      = "#"
	negationPrefix     = "!"
	pathSeparator      = "/"
	doubleStarSegment  = "**"
	invalidLineFormat  = "line %d: invalid pattern %q"
	unreadableFormat   = "reading %s: %v"
	escapedHashPrefix  = `\#`
	escapedBangPrefix  = `\!`
	trailingSpaceClass = " \t"
)

// rule is a single parsed pattern line.
type rule struct {
	segments      []string
	negate        bool
	directoryOnly bool
	anchored      bool
}

// RuleSet holds the parsed rules of one .gitignore file together with the
// root-relative directory that scopes them ("" for the index root).
type RuleSet struct {
	ScopeDirectory string
	rules          []rule
}

// Len reports the number of usable rules in the set.
func (ruleSet *RuleSet) Len() int {
	if ruleSet == nil {
		return 0
	}
	return len(ruleSet.rules)
}

// LoadDirectoryRules reads the .gitignore file inside absoluteDirectoryPath
// and returns its rule set scoped to scopeDirectory (root-relative, slash
// separated, "" for the root). A missing file yields a nil set and no
// warnings. An unreadable file or an invalid pattern line contributes no
// rules and is reported as an InvalidGitignore warning; the build proceeds.
func LoadDirectoryRules(absoluteDirectoryPath string, scopeDirectory string) (*RuleSet, []types.Warning) {
	gitignorePath := filepath.Join(absoluteDirectoryPath, FileName)
	fileHandle, openError := os.Open(gitignorePath)
	if openError != nil {
		if os.IsNotExist(openError) {
			return nil, nil
		}
		return nil, []types.Warning{{
			Kind:   types.WarningKindInvalidGitignore,
			Path:   gitignorePath,
			Detail: fmt.Sprintf(unreadableFormat, FileName, openError),
		}}
	}
	defer fileHandle.Close()

	ruleSet := &RuleSet{ScopeDirectory: scopeDirectory}
	var warnings []types.Warning
	lineNumber := 0
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		lineNumber++
		parsedRule, usable, parseError := parseLine(scanner.Text())
		if parseError != nil {
			warnings = append(warnings, types.Warning{
				Kind:   types.WarningKindInvalidGitignore,
				Path:   gitignorePath,
				Detail: fmt.Sprintf(invalidLineFormat, lineNumber, strings.TrimSpace(scanner.Text())),
			})
			continue
		}
		if usable {
			ruleSet.rules = append(ruleSet.rules, parsedRule)
		}
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, append(warnings, types.Warning{
			Kind:   types.WarningKindInvalidGitignore,
			Path:   gitignorePath,
			Detail: fmt.Sprintf(unreadableFormat, FileName, scanError),
		})
	}
	if len(ruleSet.rules) == 0 {
		return nil, warnings
	}
	return ruleSet, warnings
}

// parseLine converts one ignore file line into a rule. The second return
// value is false for blank lines and comments.
func parseLine(rawLine string) (rule, bool, error) {
	lineValue := strings.TrimRight(rawLine, trailingSpaceClass)
	if lineValue == "" || strings.HasPrefix(lineValue, commentPrefix) {
		return rule{}, false, nil
	}

	parsedRule := rule{}
	if strings.HasPrefix(lineValue, negationPrefix) {
		parsedRule.negate = true
		lineValue = strings.TrimPrefix(lineValue, negationPrefix)
	}
	switch {
	case strings.HasPrefix(lineValue, escapedHashPrefix):
		lineValue = strings.TrimPrefix(lineValue, `\`)
	case strings.HasPrefix(lineValue, escapedBangPrefix):
		lineValue = strings.TrimPrefix(lineValue, `\`)
	}
	if strings.HasSuffix(lineValue, pathSeparator) {
		parsedRule.directoryOnly = true
		lineValue = strings.TrimSuffix(lineValue, pathSeparator)
	}
	if strings.HasPrefix(lineValue, pathSeparator) {
		parsedRule.anchored = true
		lineValue = strings.TrimPrefix(lineValue, pathSeparator)
	}
	if lineValue == "" {
		return rule{}, false, nil
	}
	parsedRule.segments = strings.Split(lineValue, pathSeparator)
	// A pattern containing an interior slash is anchored to the ignore
	// file's directory, matching git semantics.
	if len(parsedRule.segments) > 1 {
		parsedRule.anchored = true
	}
	for _, segment := range parsedRule.segments {
		if segment == doubleStarSegment {
			continue
		}
		if _, matchError := path.Match(segment, segment); matchError != nil {
			return rule{}, false, matchError
		}
	}
	return parsedRule, true, nil
}

// matches reports whether the rule applies to relativePath (slash separated,
// relative to the rule set's scope directory).
func (currentRule rule) matches(relativePath string, isDirectory bool) bool {
	if currentRule.directoryOnly && !isDirectory {
		return false
	}
	pathSegments := strings.Split(relativePath, pathSeparator)
	if currentRule.anchored {
		return matchSegments(currentRule.segments, pathSegments)
	}
	// Unanchored patterns match the entry's base name at any depth.
	baseName := pathSegments[len(pathSegments)-1]
	isMatched, matchError := path.Match(currentRule.segments[0], baseName)
	return matchError == nil && isMatched
}

// matchSegments evaluates pattern segments against path segments, where a
// bare "**" segment spans any number of path segments (including none).
func matchSegments(patternSegments, pathSegments []string) bool {
	if len(patternSegments) == 0 {
		return len(pathSegments) == 0
	}
	if patternSegments[0] == doubleStarSegment {
		for skipCount := 0; skipCount <= len(pathSegments); skipCount++ {
			if matchSegments(patternSegments[1:], pathSegments[skipCount:]) {
				return true
			}
		}
		return false
	}
	if len(pathSegments) == 0 {
		return false
	}
	isMatched, matchError := path.Match(patternSegments[0], pathSegments[0])
	if matchError != nil || !isMatched {
		return false
	}
	return matchSegments(patternSegments[1:], pathSegments[1:])
}

// Chain is an ordered sequence of rule sets from the index root down to the
// directory currently being walked. Extending a chain copies the slice, so
// parallel traversal branches never share mutable state.
type Chain struct {
	sets []*RuleSet
}

// NewChain returns a chain seeded with the root directory's rule set, which
// may be nil when the root has no .gitignore.
func NewChain(rootSet *RuleSet) *Chain {
	chain := &Chain{}
	if rootSet != nil {
		chain.sets = []*RuleSet{rootSet}
	}
	return chain
}

// Extend returns a new chain with deeperSet appended. A nil deeperSet
// returns the receiver unchanged.
func (chain *Chain) Extend(deeperSet *RuleSet) *Chain {
	if deeperSet == nil {
		return chain
	}
	extendedSets := make([]*RuleSet, 0, len(chain.sets)+1)
	extendedSets = append(extendedSets, chain.sets...)
	extendedSets = append(extendedSets, deeperSet)
	return &Chain{sets: extendedSets}
}

// Ignored decides whether the entry at rootRelativePath (slash separated)
// is excluded. Rule sets are consulted from the root down; within a set,
// rules apply in file order. The last matching rule wins, so a deeper or
// later rule (including a negation) overrides earlier decisions.
func (chain *Chain) Ignored(rootRelativePath string, isDirectory bool) bool {
	ignored := false
	for _, ruleSet := range chain.sets {
		scopeRelativePath, inScope := scopeRelative(rootRelativePath, ruleSet.ScopeDirectory)
		if !inScope {
			continue
		}
		for _, currentRule := range ruleSet.rules {
			if currentRule.matches(scopeRelativePath, isDirectory) {
				ignored = !currentRule.negate
			}
		}
	}
	return ignored
}

// scopeRelative rewrites a root-relative path to be relative to the given
// scope directory, reporting false when the path lies outside the scope.
func scopeRelative(rootRelativePath string, scopeDirectory string) (string, bool) {
	if scopeDirectory == "" {
		return rootRelativePath, true
	}
	scopePrefix := scopeDirectory + pathSeparator
	if !strings.HasPrefix(rootRelativePath, scopePrefix) {
		return "", false
	}
	return strings.TrimPrefix(rootRelativePath, scopePrefix), true
}
