package domain

// MetadataSource is the metadata key holding the path of the file a document was read from.
const MetadataSource = "source"

// Document represents a single text file loaded into the system.
type Document struct {
	ID       string
	Path     string
	Content  string
	Metadata map[string]string
}

// Chunk is a trimmed slice of a document used for indexing.
// Metadata is shared with the parent document so provenance survives splitting.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	Metadata   map[string]string
}

// Source returns the provenance of the chunk, usually a file path.
func (c Chunk) Source() string {
	return c.Metadata[MetadataSource]
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Answer is what a question produces: the chain output plus the retrieved context.
type Answer struct {
	Text      string
	ChainType string
	Texts     []string
	Metadata  []map[string]string
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}
