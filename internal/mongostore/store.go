package mongostore

import (
	"context"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/logging"
)

// Store executes read operations against a single MongoDB database with
// tenant scoping and identifier coercion applied on every call.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// FindOptions carries the optional knobs of a find call.
type FindOptions struct {
	Limit      int64
	Skip       int64
	Sort       map[string]any
	Projection map[string]any
}

// Connect opens a client, verifies the deployment is reachable and returns
// a store bound to the named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, faults.Wrap(faults.SourceUnavailable, err, "ping mongodb")
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logging.Component("mongostore"),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Find runs a filtered query and returns JSON-friendly documents.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]any, opts FindOptions, workspace string) ([]map[string]any, error) {
	scoped := WithTenant(CoerceFilter(filter), workspace)
	s.logger.Debug().Str("collection", collection).Interface("filter", scoped).Msg("find")

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toBSON(scoped), findOpts)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "find on %s", collection)
	}
	return drain(ctx, cursor, collection)
}

// FindOne returns the first matching document, or nil when nothing matches.
func (s *Store) FindOne(ctx context.Context, collection string, filter map[string]any, opts FindOptions, workspace string) (map[string]any, error) {
	opts.Limit = 1
	docs, err := s.Find(ctx, collection, filter, opts, workspace)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Aggregate runs a pipeline with the tenant match applied up front.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []any, workspace string) ([]map[string]any, error) {
	scoped := PipelineWithTenant(CoercePipeline(pipeline), workspace)
	s.logger.Debug().Str("collection", collection).Int("stages", len(scoped)).Msg("aggregate")

	cursor, err := s.db.Collection(collection).Aggregate(ctx, scoped)
	if err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "aggregate on %s", collection)
	}
	return drain(ctx, cursor, collection)
}

// Count returns the number of documents matching the scoped filter.
func (s *Store) Count(ctx context.Context, collection string, filter map[string]any, workspace string) (int64, error) {
	scoped := WithTenant(CoerceFilter(filter), workspace)
	n, err := s.db.Collection(collection).CountDocuments(ctx, toBSON(scoped))
	if err != nil {
		return 0, faults.Wrap(faults.QueryExecutionFailed, err, "count on %s", collection)
	}
	return n, nil
}

// ListCollections names every collection in the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "list collections")
	}
	return names, nil
}

// Sample returns up to limit random documents from a collection, scoped to
// the workspace. It satisfies introspect.Sampler.
func (s *Store) Sample(ctx context.Context, source string, limit int, workspace string) ([]map[string]any, error) {
	// The tenant match precedes $sample so the sample is drawn from the
	// workspace's documents only.
	pipeline := PipelineWithTenant([]any{
		map[string]any{"$sample": map[string]any{"size": limit}},
	}, workspace)

	cursor, err := s.db.Collection(source).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, faults.Wrap(faults.SourceUnavailable, err, "sample %s", source)
	}
	return drain(ctx, cursor, source)
}

// EstimatedCount reports the collection's total document count for schema
// reports.
func (s *Store) EstimatedCount(ctx context.Context, collection string, workspace string) (int64, error) {
	if workspace != "" {
		return s.Count(ctx, collection, map[string]any{}, workspace)
	}
	n, err := s.db.Collection(collection).EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.QueryExecutionFailed, err, "count %s", collection)
	}
	return n, nil
}

func drain(ctx context.Context, cursor *mongo.Cursor, collection string) ([]map[string]any, error) {
	defer cursor.Close(ctx)
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, faults.Wrap(faults.QueryExecutionFailed, err, "read cursor on %s", collection)
	}
	out := make([]map[string]any, len(raw))
	for i, doc := range raw {
		out[i], _ = NormalizeValue(doc).(map[string]any)
	}
	return out, nil
}

func toBSON(m map[string]any) bson.M {
	if m == nil {
		return bson.M{}
	}
	return bson.M(m)
}
