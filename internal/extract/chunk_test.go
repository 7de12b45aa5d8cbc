package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPages(t *testing.T) {
	raw := []byte("page one text\fpage two text\fpage three text")

	pages := SplitPages(raw)

	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "page one text", pages[0].Text)
	assert.Equal(t, 3, pages[2].Number)
}

func TestSplitPages_TrailingFormFeed(t *testing.T) {
	pages := SplitPages([]byte("only page\f"))

	require.Len(t, pages, 1)
	assert.Equal(t, "only page", pages[0].Text)
}

func TestSplitPages_InteriorEmptyPageKeepsNumbering(t *testing.T) {
	pages := SplitPages([]byte("first\f\fthird"))

	require.Len(t, pages, 3)
	assert.Equal(t, "", pages[1].Text)
	assert.Equal(t, 3, pages[2].Number)
}

func TestBuildChunks_PageBoundarySplit(t *testing.T) {
	// Budget of 100 tokens = 400 chars; each page ~210 chars marked, so two
	// pages never fit in one chunk together with a third.
	pageText := strings.Repeat("x", 190)
	pages := []Page{
		{Number: 1, Text: pageText},
		{Number: 2, Text: pageText},
		{Number: 3, Text: pageText},
	}

	chunks := BuildChunks(pages, 100)

	require.Len(t, chunks, 2)
	assert.Equal(t, []int{1, 2}, chunks[0].Pages)
	assert.Equal(t, []int{3}, chunks[1].Pages)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Contains(t, chunks[0].Text, "--- PAGE 1 ---")
	assert.Contains(t, chunks[0].Text, "--- PAGE 2 ---")
	assert.Contains(t, chunks[1].Text, "--- PAGE 3 ---")
}

func TestBuildChunks_OversizedPageOwnChunk(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "short"},
		{Number: 2, Text: strings.Repeat("y", 2000)}, // far over a 100-token budget
		{Number: 3, Text: "short"},
	}

	chunks := BuildChunks(pages, 100)

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{2}, chunks[1].Pages)
}

func TestBuildChunks_SkipsEmptyPages(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "content"},
		{Number: 2, Text: ""},
		{Number: 3, Text: "more content"},
	}

	chunks := BuildChunks(pages, 1000)

	require.Len(t, chunks, 1)
	assert.Equal(t, []int{1, 3}, chunks[0].Pages)
	assert.NotContains(t, chunks[0].Text, "--- PAGE 2 ---")
}

func TestBuildChunks_Empty(t *testing.T) {
	assert.Empty(t, BuildChunks(nil, 100))
	assert.Empty(t, BuildChunks([]Page{{Number: 1, Text: ""}}, 100))
}
