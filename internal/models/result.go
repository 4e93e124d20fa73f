package models

// Source is a retrieval candidate. After answer synthesis its Text may hold the
// quoted span instead of the whole chunk.
type Source struct {
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score,omitempty"`
}

// Answer is the result of a question. Sources holds zero or one entry.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SearchHit is a single nearest-neighbor result from a vector index.
type SearchHit struct {
	ID      string
	Score   float64 // cosine similarity, higher is closer
	Payload Payload
}

// SourceFromHit maps an index hit to a candidate.
func SourceFromHit(h SearchHit) Source {
	return Source{
		Filename:   h.Payload.Filename,
		PageNumber: h.Payload.PageNumber,
		Text:       h.Payload.Text,
		Score:      h.Score,
	}
}

// UploadResponse is returned after a document upload.
type UploadResponse struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Message  string `json:"message"`
}

// FilesResponse lists stored documents.
type FilesResponse struct {
	Files []string `json:"files"`
}

// SearchResponse is the response for a raw retrieval request.
type SearchResponse struct {
	Query      string   `json:"query"`
	Candidates []Source `json:"candidates"`
	QueryTime  int64    `json:"query_time_ms"`
}
