package domain

import "time"

// CourseChunk is the unit of retrieval: a bounded passage of the knowledge
// corpus with its section label and position.
type CourseChunk struct {
	ID         string
	Collection string
	Course     string // section heading the chunk came from, empty for the default section
	ChunkIndex int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredChunk pairs a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk CourseChunk
	Score float32
}
