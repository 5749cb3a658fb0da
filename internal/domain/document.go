package domain

import "time"

// DocumentChunk is the atomic unit of document indexing and retrieval.
// All chunks of a document share DocumentID, Filename and TotalChunks, and
// ChunkIndex is contiguous in [0, TotalChunks).
type DocumentChunk struct {
	DocumentID  string
	UserID      string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	Text        string
	Embedding   []float32
	CreatedAt   time.Time
}

// DocumentInfo describes one uploaded document, derived from its chunk set.
type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// ChunkMatch is a scored retrieval hit from the document collection.
type ChunkMatch struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}
