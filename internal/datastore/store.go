package datastore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/repository"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

const component = "datastore"

// OperationInput is a pending write as captured by the interceptor.
type OperationInput struct {
	URL       string
	Method    string
	Headers   entities.Headers
	Body      *string
	Timestamp int64
	Operation string
}

// Store is the durable local store. Reads degrade to empty results when the
// underlying database fails; a nil *Store behaves as an unavailable store.
type Store struct {
	mgr     *Manager
	pending repository.PendingOperationRepository
	cached  repository.CachedEntityRepository
	log     logger.Logger
	now     func() time.Time
}

// OpenStore opens the store described by settings, creating and migrating it
// on first use. Every failure is reported as CategoryStoreUnavailable.
func OpenStore(ctx context.Context, settings *conf.Settings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.Module(component)

	cfg := Config{
		DataDir: settings.Store.DataDir,
		Name:    settings.Store.Name,
		Version: settings.Store.Version,
		DSN:     settings.Store.DSN,
		Debug:   settings.Log.Level == "debug",
	}

	var (
		mgr *Manager
		err error
	)
	switch settings.Store.Driver {
	case conf.DriverMySQL:
		mgr, err = NewMySQLManager(cfg)
	default:
		mgr, err = NewSQLiteManager(cfg)
	}
	if err != nil {
		return nil, unavailable(err, settings.Store)
	}
	if err := ctx.Err(); err != nil {
		_ = mgr.Close()
		return nil, unavailable(err, settings.Store)
	}
	if err := mgr.Initialize(); err != nil {
		_ = mgr.Close()
		return nil, unavailable(err, settings.Store)
	}

	log.Info("store opened",
		logger.String("name", cfg.name()),
		logger.String("dialect", mgr.Dialect()),
		logger.Int("version", cfg.version()))

	return NewStore(mgr, log), nil
}

// NewStore wraps an initialized manager.
func NewStore(mgr *Manager, log logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		mgr:     mgr,
		pending: repository.NewPendingOperationRepository(mgr.DB()),
		cached:  repository.NewCachedEntityRepository(mgr.DB()),
		log:     log,
		now:     time.Now,
	}
}

func unavailable(err error, s conf.StoreSettings) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryStoreUnavailable).
		Context("driver", s.Driver).
		Context("name", s.Name).
		Build()
}

func (s *Store) available() bool {
	return s != nil && s.mgr != nil
}

// EnqueueOperation appends a pending operation and returns its assigned id.
func (s *Store) EnqueueOperation(ctx context.Context, in OperationInput) (uint, error) {
	if !s.available() {
		return 0, errors.Newf("store is not open").Component(component).Category(errors.CategoryStoreUnavailable).Build()
	}
	op := &entities.PendingOperation{
		URL:       in.URL,
		Method:    in.Method,
		Headers:   in.Headers,
		Body:      in.Body,
		Timestamp: in.Timestamp,
		Operation: in.Operation,
	}
	if err := s.pending.Enqueue(ctx, op); err != nil {
		return 0, errors.New(err).
			Component(component).
			Category(errors.CategoryDatabase).
			Context("operation", in.Operation).
			Build()
	}
	s.log.Debug("operation queued",
		logger.Uint64("id", uint64(op.ID)),
		logger.String("operation", op.Operation),
		logger.String("method", op.Method))
	return op.ID, nil
}

// ListPendingOperations returns all pending operations, oldest timestamp first.
func (s *Store) ListPendingOperations(ctx context.Context) ([]entities.PendingOperation, error) {
	if !s.available() {
		return nil, nil
	}
	ops, err := s.pending.ListByTimestamp(ctx)
	if err != nil {
		return nil, errors.New(err).Component(component).Category(errors.CategoryDatabase).Build()
	}
	return ops, nil
}

// RemoveOperation deletes a pending operation. Absent ids are not an error.
func (s *Store) RemoveOperation(ctx context.Context, id uint) error {
	if !s.available() {
		return nil
	}
	if err := s.pending.Remove(ctx, id); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryDatabase).
			Context("id", id).
			Build()
	}
	return nil
}

// CountPendingOperations returns the queue depth, or 0 when it cannot be read.
func (s *Store) CountPendingOperations(ctx context.Context) int {
	if !s.available() {
		return 0
	}
	n, err := s.pending.Count(ctx)
	if err != nil {
		s.log.Warn("count pending operations failed", logger.Error(err))
		return 0
	}
	return int(n)
}

// UpsertCachedEntities stamps every entity with the current time and writes
// them in one transaction, replacing earlier snapshots with the same id.
// A nil slice is logged and ignored. An entity without a string or numeric id
// fails the whole call.
func (s *Store) UpsertCachedEntities(ctx context.Context, items []json.RawMessage) error {
	if items == nil {
		s.logger().Warn("cached entities skipped: not a list")
		return nil
	}
	if !s.available() {
		return errors.Newf("store is not open").Component(component).Category(errors.CategoryStoreUnavailable).Build()
	}

	now := s.now().UnixMilli()
	rows := make([]entities.CachedEntity, 0, len(items))
	for i, raw := range items {
		id, err := EntityID(raw)
		if err != nil {
			return errors.New(err).
				Component(component).
				Category(errors.CategoryValidation).
				Context("index", i).
				Build()
		}
		rows = append(rows, entities.CachedEntity{ID: id, Data: string(raw), LastModified: now})
	}

	if err := s.cached.Upsert(ctx, rows); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryDatabase).
			Context("count", len(rows)).
			Build()
	}
	return nil
}

// GetAllCachedEntities returns every cached entity as stored JSON. Read
// failures yield an empty slice.
func (s *Store) GetAllCachedEntities(ctx context.Context) []json.RawMessage {
	if !s.available() {
		return []json.RawMessage{}
	}
	rows, err := s.cached.All(ctx)
	if err != nil {
		s.log.Warn("read cached entities failed", logger.Error(err))
		return []json.RawMessage{}
	}
	return toRaw(rows)
}

// CachedEntitiesSince returns entities cached at or after since, newest first.
func (s *Store) CachedEntitiesSince(ctx context.Context, since time.Time) []json.RawMessage {
	if !s.available() {
		return []json.RawMessage{}
	}
	rows, err := s.cached.ModifiedSince(ctx, since.UnixMilli())
	if err != nil {
		s.log.Warn("read cached entities failed", logger.Error(err))
		return []json.RawMessage{}
	}
	return toRaw(rows)
}

// CachedEntityCount is the size of the entity mirror, 0 on failure.
func (s *Store) CachedEntityCount(ctx context.Context) int {
	if !s.available() {
		return 0
	}
	n, err := s.cached.Count(ctx)
	if err != nil {
		s.log.Warn("count cached entities failed", logger.Error(err))
		return 0
	}
	return int(n)
}

// Close releases the database.
func (s *Store) Close() error {
	if !s.available() {
		return nil
	}
	return s.mgr.Close()
}

func (s *Store) logger() logger.Logger {
	if s == nil || s.log == nil {
		return logger.Discard()
	}
	return s.log
}

func toRaw(rows []entities.CachedEntity) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r.Data))
	}
	return out
}

// EntityID returns the canonical key of a JSON entity: its "id" as a string,
// or the decimal text of a numeric id.
func EntityID(raw json.RawMessage) (string, error) {
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return "", errors.NewStd("entity is not a JSON object")
	}
	if id, err := obj.GetString("id"); err == nil {
		if id == "" {
			return "", repository.ErrMissingEntityID
		}
		return id, nil
	}
	if num, err := obj.GetNumber("id"); err == nil {
		return num.String(), nil
	}
	return "", repository.ErrMissingEntityID
}
