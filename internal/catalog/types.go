// Package catalog manages the persisted set of saved recordings.
package catalog

import (
	"context"
	"time"

	"github.com/pacelabs/pace-core/internal/rate"
)

// Metadata is one saved recording. Records are immutable once saved.
type Metadata struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Timestamp      time.Time     `json:"timestamp"`
	Duration       float64       `json:"duration"` // seconds
	WordsPerMinute int           `json:"wordsPerMinute"`
	SpeechSpeed    rate.Category `json:"speechSpeed"`
	Transcript     string        `json:"transcript"`
	StorageURI     string        `json:"storageUri"`
}

// Store is the external metadata store collaborator.
type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]Metadata, error)
	Put(ctx context.Context, ownerID string, m Metadata) error
	Delete(ctx context.Context, ownerID, id string) error
}
