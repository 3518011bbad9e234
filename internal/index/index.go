package index

import (
	"errors"
	"time"

	"gwi.com/pdf-chatbot/internal/utils"
)

const formatVersion = 1

var (
	ErrEmptyInput   = errors.New("no chunks to index")
	ErrIndexCorrupt = errors.New("index artifact is unreadable")
	ErrInvalidOwner = errors.New("invalid index owner")
)

type Chunk struct {
	ID     int       `json:"id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Index is a flat nearest-neighbour index over the chunks of one document.
type Index struct {
	Version        int       `json:"version"`
	Owner          string    `json:"owner"`
	Source         string    `json:"source,omitempty"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	BuiltAt        time.Time `json:"built_at"`
	Chunks         []Chunk   `json:"chunks"`

	Path string `json:"-"`
}

type Result struct {
	ChunkID int
	Text    string
	Score   float32
}

func (idx *Index) ChunkCount() int {
	return len(idx.Chunks)
}

// Search returns the k chunks most similar to vector, best first.
func (idx *Index) Search(vector []float32, k int) ([]Result, error) {
	candidates := make([][]float32, len(idx.Chunks))
	for i, c := range idx.Chunks {
		candidates[i] = c.Vector
	}

	scored, err := utils.TopK(vector, candidates, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(scored))
	for i, s := range scored {
		c := idx.Chunks[s.Index]
		results[i] = Result{ChunkID: c.ID, Text: c.Text, Score: s.Score}
	}
	return results, nil
}

func (idx *Index) validate() error {
	if idx.Version != formatVersion {
		return errors.New("unsupported index version")
	}
	if len(idx.Chunks) == 0 {
		return errors.New("index has no chunks")
	}
	if idx.Dimension <= 0 {
		return errors.New("index has no dimension")
	}
	for _, c := range idx.Chunks {
		if len(c.Vector) != idx.Dimension {
			return errors.New("chunk vector dimension mismatch")
		}
	}
	return nil
}
