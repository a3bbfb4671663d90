package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Marketing content collections editable from the dashboard.
const (
	CollectionServices    = "services"
	CollectionFAQs        = "faqs"
	CollectionPartners    = "partners"
	CollectionRegions     = "regions"
	CollectionTeamMembers = "team_members"

	// CollectionSettings holds the single company settings document.
	CollectionSettings = "settings"
	SettingsDocumentID = "company"
)

// ContentCollections lists the collections served by the content API.
var ContentCollections = []string{
	CollectionServices,
	CollectionFAQs,
	CollectionPartners,
	CollectionRegions,
	CollectionTeamMembers,
}

// Document is one piece of marketing content. Data is an opaque JSON object;
// the site front end owns its shape.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	Position   int             `json:"position"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// DocumentInput is the payload for creating or replacing a document.
type DocumentInput struct {
	Data     json.RawMessage `json:"data" binding:"required"`
	Position int             `json:"position"`
}

// ContentRepository defines the data-access contract for content documents.
// Implementations live in internal/core/repository (Core layer).
type ContentRepository interface {
	// List returns the documents of a collection ordered by position, then creation time.
	List(ctx context.Context, collection string) ([]Document, error)

	// Get returns a single document.
	// Returns (nil, nil) when no document is found.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Insert stores a new document and returns it with timestamps set.
	Insert(ctx context.Context, doc Document) (*Document, error)

	// Update replaces data and position of an existing document.
	// Returns (nil, nil) when no document is found.
	Update(ctx context.Context, collection, id string, in DocumentInput) (*Document, error)

	// Upsert inserts or replaces the document with the given id.
	Upsert(ctx context.Context, doc Document) (*Document, error)

	// Delete removes a document and reports whether it existed.
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// ContentCache caches collection listings between mutations.
// Implementations live in internal/core/cache.
type ContentCache interface {
	// GetList returns the cached listing and whether it was present.
	GetList(ctx context.Context, collection string) ([]Document, bool, error)

	// Generation returns the collection's invalidation counter. Read it
	// before loading a listing and pass it to SetList.
	Generation(ctx context.Context, collection string) (int64, error)

	// SetList stores the listing of a collection, unless the collection was
	// invalidated since generation was read. It reports whether it stored.
	SetList(ctx context.Context, collection string, generation int64, docs []Document) (bool, error)

	// Invalidate advances the generation and drops the cached listing.
	Invalidate(ctx context.Context, collection string) error
}
