package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutePages_KeywordMatch(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "Face sheet, demographics, next of kin"},
		{Number: 2, Text: "Serology panel: HBsAg Nonreactive, HIV 1/2 Ab Nonreactive"},
		{Number: 3, Text: "nursing shift notes, vitals stable"},
		{Number: 4, Text: "Urine culture: no growth at 48 hours"},
	}

	assert.Equal(t, []int{2, 4}, RoutePages(pages))
}

func TestRoutePages_CaseInsensitive(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "patient history of hepatitis c"},
	}

	assert.Equal(t, []int{1}, RoutePages(pages))
}

func TestRoutePages_FallbackMultiPage(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "nothing of note"},
		{Number: 2, Text: "still nothing"},
		{Number: 3, Text: "blank"},
	}

	assert.Equal(t, []int{1, 2}, RoutePages(pages))
}

func TestRoutePages_FallbackSinglePage(t *testing.T) {
	pages := []Page{{Number: 1, Text: "nothing of note"}}

	assert.Equal(t, []int{1}, RoutePages(pages))
}

func TestRoutePages_SortedUnique(t *testing.T) {
	pages := []Page{
		{Number: 9, Text: "CMV IgG reactive"},
		{Number: 2, Text: "Authorization form signed"},
		{Number: 2, Text: "Authorization form signed"},
	}

	assert.Equal(t, []int{2, 9}, RoutePages(pages))
}

func TestNewRouter_CustomLexicon(t *testing.T) {
	r := NewRouter([]string{"Worksheet"})
	pages := []Page{
		{Number: 1, Text: "Serology panel: HBsAg Nonreactive"}, // built-in keyword, not in the override
		{Number: 2, Text: "donor eligibility worksheet"},
	}

	assert.Equal(t, []int{2}, r.Route(pages))
}

func TestPrioritizeChunks_RoutedFirst(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Pages: []int{1}},
		{Index: 1, Pages: []int{2}},
		{Index: 2, Pages: []int{3}},
	}

	got := PrioritizeChunks(chunks, []int{3})

	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 0, got[1].Index)
	assert.Equal(t, 1, got[2].Index)
}

func TestPrioritizeChunks_StableWithinGroups(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Pages: []int{1, 2}},
		{Index: 1, Pages: []int{3}},
		{Index: 2, Pages: []int{4, 5}},
		{Index: 3, Pages: []int{6}},
	}

	got := PrioritizeChunks(chunks, []int{2, 5})

	require.Len(t, got, 4)
	assert.Equal(t, []int{0, 2, 1, 3}, []int{got[0].Index, got[1].Index, got[2].Index, got[3].Index})
}

func TestPrioritizeChunks_NoRoutedPagesKeepsOrder(t *testing.T) {
	chunks := []Chunk{
		{Index: 0, Pages: []int{1}},
		{Index: 1, Pages: []int{2}},
	}

	assert.Equal(t, chunks, PrioritizeChunks(chunks, nil))
}
