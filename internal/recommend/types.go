// Package recommend turns a user's saved papers into ranked recommendations.
//
// The pipeline is: fetch saved embeddings, average them into an interest
// vector, ask the store for the nearest papers, drop anything already saved,
// and truncate to the requested limit.
package recommend

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/matsen/paperrec/internal/paper"
)

// Status is the terminal state of a recommendation request.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusNotEnoughData Status = "not_enough_data"
)

// NotEnoughDataMessage explains an insufficient-data result to the user.
const NotEnoughDataMessage = "Please save at least 5 papers to get recommendations."

// Result is the outcome of a recommendation request.
type Result struct {
	Status          Status
	Message         string
	Recommendations []paper.Match
}

// MarshalJSON emits {status, message} for insufficient data and
// {status, recommendations} for success. recommendations is never null.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusNotEnoughData {
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
		}{r.Status, r.Message})
	}

	recs := r.Recommendations
	if recs == nil {
		recs = []paper.Match{}
	}
	return json.Marshal(struct {
		Status          Status        `json:"status"`
		Recommendations []paper.Match `json:"recommendations"`
	}{r.Status, recs})
}

// Searcher runs nearest-neighbour queries over stored unit-normalized embeddings.
type Searcher interface {
	SearchNearest(ctx context.Context, query []float32, k int) ([]paper.Match, error)
}

// Store is the subset of the paper store the recommender reads.
type Store interface {
	Searcher

	// SavedPaperIDs returns the ids a user has saved.
	SavedPaperIDs(ctx context.Context, userID string) ([]string, error)

	// EmbeddingsByIDs returns stored embeddings; ids without one are absent.
	EmbeddingsByIDs(ctx context.Context, ids []string) (map[string][]float32, error)
}

// Request is a validated recommendation request.
type Request struct {
	UserID string `validate:"required"`
	Limit  int    `validate:"gte=0,lte=1000"`
}
