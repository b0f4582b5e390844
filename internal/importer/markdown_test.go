package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

func TestParseNote_Frontmatter(t *testing.T) {
	src := `---
title: Trip planning
tags: [travel, "#Family"]
date: "2024-05-01"
type: event
---

# Trip planning

Book the cabin near [[Lake Tahoe|the lake]] and ask [[Sam]]. #todo
`
	note, err := ParseNote([]byte(src), "Personal/Trips/tahoe.md")
	require.NoError(t, err)

	assert.Equal(t, "Trip planning", note.Title)
	assert.Equal(t, "Book the cabin near the lake and ask Sam. #todo", note.Body)
	assert.Equal(t, []string{"personal", "trips", "travel", "Family", "todo"}, note.Tags)
	assert.Equal(t, []string{"Lake Tahoe", "Sam"}, note.Links)
	assert.Equal(t, types.MemoryType("event"), note.MemoryType)
	assert.True(t, note.CreatedAt.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseNote_UnquotedDate(t *testing.T) {
	src := "---\ndate: 2023-11-20\n---\nbody"
	note, err := ParseNote([]byte(src), "n.md")
	require.NoError(t, err)
	assert.True(t, note.CreatedAt.Equal(time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)))
}

func TestParseNote_TitleFromHeadingOrFileName(t *testing.T) {
	note, err := ParseNote([]byte("# Weekly review\n\nShipped the release."), "review.md")
	require.NoError(t, err)
	assert.Equal(t, "Weekly review", note.Title)
	assert.Equal(t, "Shipped the release.", note.Body)

	note, err = ParseNote([]byte("Just a thought."), "random_idea-2.md")
	require.NoError(t, err)
	assert.Equal(t, "random idea 2", note.Title)
	assert.Equal(t, "Just a thought.", note.Body)
	assert.Nil(t, note.Tags)
	assert.True(t, note.CreatedAt.IsZero())
}

func TestParseNote_DifferentHeadingKept(t *testing.T) {
	src := "---\ntitle: Meeting\n---\n# Agenda\n- budget"
	note, err := ParseNote([]byte(src), "m.md")
	require.NoError(t, err)
	assert.Equal(t, "Meeting", note.Title)
	assert.Equal(t, "# Agenda\n- budget", note.Body)
}

func TestParseNote_InvalidFrontmatter(t *testing.T) {
	_, err := ParseNote([]byte("---\ntags: [unclosed\n---\nbody"), "bad.md")
	assert.ErrorContains(t, err, "bad.md")
}

func TestParseNote_UnclosedFrontmatterIsBody(t *testing.T) {
	note, err := ParseNote([]byte("---\nnot closed"), "x.md")
	require.NoError(t, err)
	assert.Equal(t, "---\nnot closed", note.Body)
}

func TestParseNote_UnknownTypeIgnored(t *testing.T) {
	note, err := ParseNote([]byte("---\ntype: dream\n---\nbody"), "x.md")
	require.NoError(t, err)
	assert.Empty(t, note.MemoryType)
}

func TestNote_Capture(t *testing.T) {
	note := &Note{Title: "t", Body: "b", Tags: []string{"x"}}
	c := note.Capture("alice")
	assert.Equal(t, "alice", c.UserID)
	assert.Equal(t, types.SourceExternal, c.Source)
	assert.Equal(t, "b", c.Text)
}

func TestWikiLinks(t *testing.T) {
	body := "See [[Alpha]], [[alpha|again]] and [[Beta|B]]."
	assert.Equal(t, []string{"Alpha", "Beta"}, WikiLinks(body))
	assert.Equal(t, "See Alpha, again and B.", StripWikiLinks(body))
	assert.Nil(t, WikiLinks("no links"))
}
