package chunker

import (
	"strconv"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// newChunk tags text with the document's identity and shares its metadata.
func newChunk(document domain.Document, idx int, text string) domain.Chunk {
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    ChunkID(document.ID, idx),
		Text:       text,
		Index:      idx,
		Metadata:   document.Metadata,
	}
}

// ChunkID derives a stable identifier so a rebuilt index assigns the same ids.
func ChunkID(documentID string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+":"+strconv.Itoa(idx))).String()
}
