package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DocumentChunk is one fragment of extracted annual-report text.
type DocumentChunk struct {
	CompanyName     string    `json:"company_name" csv:"COMPANY_NAME"`
	Year            int       `json:"year" csv:"YEAR"`
	RelativePath    string    `json:"relative_path" csv:"RELATIVE_PATH"`
	ChunkIndex      int       `json:"chunk_index" csv:"CHUNK_INDEX"`
	ChunkText       string    `json:"chunk_text" csv:"CHUNK"`
	Language        string    `json:"language" csv:"LANGUAGE"`
	UploadTimestamp time.Time `json:"upload_timestamp" csv:"UPLOAD_TIMESTAMP"`
}

// Validate checks that the chunk is attributable and non-empty.
func (c DocumentChunk) Validate() error {
	switch {
	case strings.TrimSpace(c.ChunkText) == "":
		return eris.Errorf("chunk %s#%d: empty chunk text", c.RelativePath, c.ChunkIndex)
	case strings.TrimSpace(c.CompanyName) == "":
		return eris.Errorf("chunk %s#%d: missing company name", c.RelativePath, c.ChunkIndex)
	case strings.TrimSpace(c.RelativePath) == "":
		return eris.New("chunk: missing relative path")
	}
	return nil
}
