package models

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     *int   `json:"top_k,omitempty"`
}

// Source is a hydrated chunk used to ground an answer
type Source struct {
	DocumentName string       `json:"document_name"`
	ChunkID      string       `json:"chunk_id"`
	TextContent  string       `json:"text_content"`
	DocumentType DocumentType `json:"document_type"`
	PageNumber   *int         `json:"page_number,omitempty"`
}

// Answer is the generated text and the ordered sources it was grounded in
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Neighbor is one vector index hit; lower distance is closer
type Neighbor struct {
	ID       string
	Distance float64
}

// UploadResponse is returned by POST /api/upload
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// SourceFromChunk materialises a chunk as an answer source
func SourceFromChunk(c Chunk) Source {
	return Source{
		DocumentName: c.DocumentName,
		ChunkID:      c.ID,
		TextContent:  c.Text,
		DocumentType: c.DocumentType,
		PageNumber:   c.PageNumber,
	}
}
