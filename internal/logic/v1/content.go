package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/logger"
	"github.com/duynhne/travel-portal/middleware"
)

// ContentService serves the marketing content collections. Listings are
// read through a cache and every mutation invalidates the listing of the
// collection it touched. Cache failures never fail a request.
type ContentService struct {
	repo  domain.ContentRepository
	cache domain.ContentCache
	newID func() string
}

// NewContentService creates a new ContentService.
func NewContentService(repo domain.ContentRepository, cache domain.ContentCache) *ContentService {
	return &ContentService{
		repo:  repo,
		cache: cache,
		newID: uuid.NewString,
	}
}

func startContentSpan(ctx context.Context, name, collection string) (context.Context, trace.Span) {
	return middleware.StartSpan(ctx, name, trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("content.collection", collection),
	))
}

// List returns the documents of a collection.
func (s *ContentService) List(ctx context.Context, collection string) ([]domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.list", collection)
	defer span.End()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	docs, ok, err := s.cache.GetList(ctx, collection)
	switch {
	case err != nil:
		contentCacheLookups.WithLabelValues(collection, "error").Inc()
		log.Warn().Err(err).Str("collection", collection).Msg("Content cache read failed")
	case ok:
		contentCacheLookups.WithLabelValues(collection, "hit").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return docs, nil
	default:
		contentCacheLookups.WithLabelValues(collection, "miss").Inc()
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	gen, genErr := s.cache.Generation(ctx, collection)
	if genErr != nil {
		log.Warn().Err(genErr).Str("collection", collection).Msg("Content cache generation read failed")
	}

	docs, err = s.repo.List(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	if genErr != nil {
		return docs, nil
	}
	stored, err := s.cache.SetList(ctx, collection, gen, docs)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("collection", collection).Msg("Content cache write failed")
	case !stored:
		// Invalidated while loading; this listing may predate the mutation.
		contentCacheLookups.WithLabelValues(collection, "superseded").Inc()
	}
	return docs, nil
}

// Get returns a single document.
func (s *ContentService) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.get", collection)
	defer span.End()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	doc, err := s.repo.Get(ctx, collection, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	return doc, nil
}

// Create adds a document to a collection.
func (s *ContentService) Create(ctx context.Context, collection string, in domain.DocumentInput) (*domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.create", collection)
	defer span.End()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkData(in.Data); err != nil {
		return nil, err
	}

	doc, err := s.repo.Insert(ctx, domain.Document{
		ID:         s.newID(),
		Collection: collection,
		Data:       in.Data,
		Position:   in.Position,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}

	s.invalidate(ctx, collection)
	span.SetAttributes(attribute.String("content.id", doc.ID))
	return doc, nil
}

// Update replaces a document's data and position.
func (s *ContentService) Update(ctx context.Context, collection, id string, in domain.DocumentInput) (*domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.update", collection)
	defer span.End()

	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkData(in.Data); err != nil {
		return nil, err
	}

	doc, err := s.repo.Update(ctx, collection, id, in)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrDocumentNotFound)
	}

	s.invalidate(ctx, collection)
	return doc, nil
}

// Delete removes a document.
func (s *ContentService) Delete(ctx context.Context, collection, id string) error {
	ctx, span := startContentSpan(ctx, "content.delete", collection)
	defer span.End()

	if err := checkCollection(collection); err != nil {
		return err
	}

	existed, err := s.repo.Delete(ctx, collection, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if !existed {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrDocumentNotFound)
	}

	s.invalidate(ctx, collection)
	return nil
}

// GetSettings returns the company settings, or an empty settings document
// when none has been saved yet.
func (s *ContentService) GetSettings(ctx context.Context) (*domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.get_settings", domain.CollectionSettings)
	defer span.End()

	doc, err := s.repo.Get(ctx, domain.CollectionSettings, domain.SettingsDocumentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if doc == nil {
		return &domain.Document{
			ID:         domain.SettingsDocumentID,
			Collection: domain.CollectionSettings,
			Data:       json.RawMessage(`{}`),
		}, nil
	}
	return doc, nil
}

// UpdateSettings replaces the company settings.
func (s *ContentService) UpdateSettings(ctx context.Context, data json.RawMessage) (*domain.Document, error) {
	ctx, span := startContentSpan(ctx, "content.update_settings", domain.CollectionSettings)
	defer span.End()

	if err := checkData(data); err != nil {
		return nil, err
	}

	doc, err := s.repo.Upsert(ctx, domain.Document{
		ID:         domain.SettingsDocumentID,
		Collection: domain.CollectionSettings,
		Data:       data,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return doc, nil
}

func (s *ContentService) invalidate(ctx context.Context, collection string) {
	if err := s.cache.Invalidate(ctx, collection); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("collection", collection).Msg("Content cache invalidation failed")
	}
}

func checkCollection(collection string) error {
	if !slices.Contains(domain.ContentCollections, collection) {
		return fmt.Errorf("collection %q: %w", collection, ErrUnknownCollection)
	}
	return nil
}

func checkData(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidDocument
	}
	return nil
}
