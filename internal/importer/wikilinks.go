// Package importer turns folders of markdown notes (Obsidian vaults, Notion
// exports, plain note directories) into recall captures.
package importer

import (
	"regexp"
	"strings"
)

// wikilinkRe matches [[target]] and [[target|alias]].
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// WikiLinks returns the distinct link targets in body, in order of first
// appearance. Targets compare case-insensitively.
func WikiLinks(body string) []string {
	var targets []string
	seen := make(map[string]bool)
	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target := strings.TrimSpace(m[1])
		key := strings.ToLower(target)
		if target == "" || seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, target)
	}
	return targets
}

// StripWikiLinks replaces each link with its alias, or its target when there
// is no alias, so the text reads naturally when embedded.
func StripWikiLinks(body string) string {
	return wikilinkRe.ReplaceAllStringFunc(body, func(match string) string {
		m := wikilinkRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(m[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(m[1])
	})
}
