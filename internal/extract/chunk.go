package extract

// charsPerToken is the rough character-to-token estimate used to bound
// chunk sizes without a tokenizer dependency.
const charsPerToken = 4

// Chunk is a token-bounded slice of paged text sent in one extraction
// request. Pages lists the page numbers it covers.
type Chunk struct {
	Index int
	Pages []int
	Text  string
}

// BuildChunks packs marked-up pages into chunks of at most maxTokens
// (estimated), splitting only on page boundaries. A single page exceeding
// the budget becomes its own oversized chunk rather than being split
// mid-page, which would detach text from its citation marker.
func BuildChunks(pages []Page, maxTokens int) []Chunk {
	budget := maxTokens * charsPerToken

	var chunks []Chunk
	var cur []string
	var curPages []int
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Pages: curPages,
			Text:  joinPages(cur),
		})
		cur, curPages, curLen = nil, nil, 0
	}

	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		marked := MarkPage(p)
		if curLen > 0 && curLen+len(marked) > budget {
			flush()
		}
		cur = append(cur, marked)
		curPages = append(curPages, p.Number)
		curLen += len(marked)
	}
	flush()

	return chunks
}

func joinPages(marked []string) string {
	out := marked[0]
	for _, m := range marked[1:] {
		out += "\n\n" + m
	}
	return out
}
