package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/recall/pkg/types"
)

// Note is a parsed markdown file.
type Note struct {
	RelativePath string
	Title        string
	Body         string // Frontmatter removed, wiki links flattened
	Tags         []string
	Links        []string
	MemoryType   types.MemoryType // Zero unless frontmatter names a valid type
	CreatedAt    time.Time        // Zero when frontmatter carries no date
}

// Capture converts n into a capture owned by userID.
func (n *Note) Capture(userID string) types.Capture {
	return types.Capture{
		UserID:     userID,
		Title:      n.Title,
		Text:       n.Body,
		Tags:       n.Tags,
		Source:     types.SourceExternal,
		MemoryType: n.MemoryType,
		CreatedAt:  n.CreatedAt,
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

var inlineTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// ParseNote parses one markdown file. rel is the path relative to the import
// root; its directories become tags.
func ParseNote(content []byte, rel string) (*Note, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}

	title := stringField(fm, "title")
	h1, rest := leadingH1(body)
	switch {
	case title == "" && h1 == "":
		title = titleFromPath(rel)
	case title == "":
		title, body = h1, rest
	case strings.EqualFold(title, h1):
		body = rest
	}

	tags := append(folderTags(rel), tagsField(fm)...)
	for _, m := range inlineTagRe.FindAllStringSubmatch(body, -1) {
		tags = append(tags, m[1])
	}

	note := &Note{
		RelativePath: rel,
		Title:        title,
		Body:         strings.TrimSpace(StripWikiLinks(body)),
		Tags:         types.NormalizeTags(tags),
		Links:        WikiLinks(body),
		CreatedAt:    dateField(fm),
	}
	if mt, ok := types.ParseMemoryType(stringField(fm, "type")); ok {
		note.MemoryType = mt
	}
	return note, nil
}

// splitFrontmatter separates a leading YAML block delimited by --- lines.
// Text without a complete block is returned unchanged as the body.
func splitFrontmatter(text string) (map[string]any, string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, text, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		fm := make(map[string]any)
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:i], "\n")), &fm); err != nil {
			return nil, "", fmt.Errorf("invalid frontmatter: %w", err)
		}
		return fm, strings.Join(lines[i+1:], "\n"), nil
	}
	return nil, text, nil
}

// leadingH1 returns the first ATX H1 when it is the first non-blank line,
// together with the body that follows it.
func leadingH1(body string) (string, string) {
	trimmed := strings.TrimLeft(body, " \t\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return "", body
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(line[2:]), rest
}

func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(name))
}

// folderTags turns each directory of rel into a tag.
func folderTags(rel string) []string {
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	var tags []string
	for _, p := range parts {
		if p == "." || p == "" {
			continue
		}
		if s := sanitizeSegment(p); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func stringField(fm map[string]any, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// tagsField accepts a YAML list or a comma separated string.
func tagsField(fm map[string]any) []string {
	switch v := fm["tags"].(type) {
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, strings.TrimPrefix(s, "#"))
			}
		}
		return tags
	case string:
		var tags []string
		for _, t := range strings.Split(v, ",") {
			tags = append(tags, strings.TrimPrefix(strings.TrimSpace(t), "#"))
		}
		return tags
	}
	return nil
}

// dateField reads the first parseable of date, created and created_at.
// yaml.v3 already decodes unquoted timestamps into time.Time.
func dateField(fm map[string]any) time.Time {
	for _, key := range []string{"date", "created", "created_at"} {
		switch v := fm[key].(type) {
		case time.Time:
			return v.UTC()
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Time{}
}
