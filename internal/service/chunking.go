package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/skillcapital/coursebot/internal/domain"
)

// LengthFunc measures text in the unit used for chunk size limits.
type LengthFunc func(string) int

// RuneLength counts characters.
func RuneLength(s string) int {
	return len([]rune(s))
}

// TokenLength returns a cl100k_base subword-token counter.
func TokenLength() (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// separators are tried largest-first; a smaller one is used only for pieces
// the larger one cannot get under the size budget.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// sectionMarker matches course section headings in the knowledge corpus.
var sectionMarker = regexp.MustCompile(`(?m)^### ([A-Za-z0-9 &]+)[ \t]*\r?\n`)

// Chunker splits knowledge text into bounded, overlapping passages tagged
// with the course section they came from.
type Chunker struct {
	size    int
	overlap int
	length  LengthFunc
}

// NewChunker creates a Chunker. A nil length function falls back to rune
// counting; overlap is clamped below size.
func NewChunker(size, overlap int, length LengthFunc) *Chunker {
	if size <= 0 {
		size = 300
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	if length == nil {
		length = RuneLength
	}
	return &Chunker{size: size, overlap: overlap, length: length}
}

type section struct {
	course string
	body   string
}

// splitSections splits the corpus on "### Course" headings. Text before the
// first heading becomes a single section with no course label.
func splitSections(text string) []section {
	matches := sectionMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []section{{body: text}}
	}

	var sections []section
	if preamble := strings.TrimSpace(text[:matches[0][0]]); preamble != "" {
		sections = append(sections, section{body: preamble})
	}
	for i, m := range matches {
		course := strings.TrimSpace(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{course: course, body: body})
	}
	return sections
}

// Chunk produces the ordered chunk sequence for a knowledge corpus.
// Boundaries are deterministic for fixed input and parameters; ids are fresh.
func (c *Chunker) Chunk(text, collection string) []domain.CourseChunk {
	now := time.Now().UTC()
	var out []domain.CourseChunk
	for _, sec := range splitSections(text) {
		for i, piece := range c.split(sec.body) {
			out = append(out, domain.CourseChunk{
				ID:         uuid.NewString(),
				Collection: collection,
				Course:     sec.course,
				ChunkIndex: i,
				Content:    piece,
				CreatedAt:  now,
			})
		}
	}
	return out
}

// split breaks one section into chunks within the size budget, repeating the
// trailing overlap of each chunk at the start of the next.
func (c *Chunker) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.merge(c.fragments(text, separators))
}

// fragments recursively cuts text into pieces that each fit the size budget,
// preferring the largest separator that works.
func (c *Chunker) fragments(text string, seps []string) []string {
	if text == "" {
		return nil
	}
	if c.length(text) <= c.size {
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return c.splitEvery(text)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if c.length(part) > c.size {
			out = append(out, c.fragments(part, rest)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// merge packs fragments into chunks, carrying up to overlap worth of
// trailing fragments into the next chunk.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, p := range pieces {
		pl := c.length(p)
		if total+pl > c.size && len(window) > 0 {
			if chunk := joinTrim(window); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(window) > 0 && (total > c.overlap || total+pl > c.size) {
				total -= c.length(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += pl
	}

	if chunk := joinTrim(window); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func joinTrim(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" || strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitEvery is the last-resort cut for text with no usable separator. It
// grows a piece rune by rune until the next rune would push the measured
// length past the size budget.
func (c *Chunker) splitEvery(text string) []string {
	var out []string
	var cur []rune
	for _, r := range text {
		next := append(cur, r)
		if len(cur) > 0 && c.length(string(next)) > c.size {
			out = append(out, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
