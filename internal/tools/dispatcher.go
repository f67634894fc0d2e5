package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/introspect"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/mongostore"
	"github.com/fleetmetry/fleetmetry/internal/pgstore"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// DocumentStore is the document-database surface the dispatcher needs.
type DocumentStore interface {
	Find(ctx context.Context, collection string, filter map[string]any, opts mongostore.FindOptions, workspace string) ([]map[string]any, error)
	FindOne(ctx context.Context, collection string, filter map[string]any, opts mongostore.FindOptions, workspace string) (map[string]any, error)
	Aggregate(ctx context.Context, collection string, pipeline []any, workspace string) ([]map[string]any, error)
	Count(ctx context.Context, collection string, filter map[string]any, workspace string) (int64, error)
	ListCollections(ctx context.Context) ([]string, error)
	Sample(ctx context.Context, source string, limit int, workspace string) ([]map[string]any, error)
}

// Warehouse is the relational surface the dispatcher needs.
type Warehouse interface {
	ExecuteQuery(ctx context.Context, query string, opts pgstore.QueryOptions, workspace string) (*pgstore.QueryResult, error)
	SchemaInfo(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, table string) (*pgstore.TableInfo, error)
	SampleRows(ctx context.Context, table string, limit int, columns []string, workspace string) ([]map[string]any, error)
	AnalyzeRelationships(ctx context.Context) (*pgstore.Relationships, error)
	Equipment(ctx context.Context, licensePlate, workspace string) (*pgstore.EquipmentSnapshot, error)
}

// RelationshipInferrer verifies candidate links between two collections.
type RelationshipInferrer interface {
	InferRelationships(ctx context.Context, col1, col2 string, schema1, schema2 models.InferredSchema, sampleSize int, workspace string) (*models.RelationshipReport, error)
}

// Dispatcher routes tool invocations to the matching executor and renders
// every outcome as text. The catalogue is static after construction.
type Dispatcher struct {
	docs           DocumentStore
	warehouse      Warehouse
	inferrer       RelationshipInferrer
	defaultSamples int
	logger         zerolog.Logger
}

func NewDispatcher(docs DocumentStore, warehouse Warehouse, inferrer RelationshipInferrer, defaultSamples int) *Dispatcher {
	if defaultSamples <= 0 {
		defaultSamples = 5
	}
	return &Dispatcher{
		docs:           docs,
		warehouse:      warehouse,
		inferrer:       inferrer,
		defaultSamples: defaultSamples,
		logger:         logging.Component("dispatcher"),
	}
}

// ListTools returns the static catalogue.
func (d *Dispatcher) ListTools() []models.ToolSpec {
	return Catalog()
}

// Dispatch executes one tool call. Execution and validation failures come
// back as textual responses with an HTTP-equivalent status; only an unknown
// tool name is returned as an error, since there is no tool contract to
// render text under.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, arguments map[string]any) (*Response, error) {
	arguments = PreprocessArguments(arguments)
	workspace, arguments := ExtractWorkspace(arguments)

	log := d.logger.With().Str("tool", name).Logger()
	log.Debug().Interface("arguments", arguments).Str("workspace", workspace).Msg("tool call")

	switch name {
	case "findDocuments":
		return d.findDocuments(ctx, arguments, workspace)
	case "findOneDocument":
		return d.findOneDocument(ctx, arguments, workspace)
	case "aggregateDocuments":
		return d.aggregateDocuments(ctx, arguments, workspace)
	case "countDocuments":
		return d.countDocuments(ctx, arguments, workspace)
	case "listCollections":
		return d.listCollections(ctx)
	case "getCollectionSchema":
		return d.getCollectionSchema(ctx, arguments, workspace)
	case "getSampleData":
		return d.getSampleData(ctx, arguments, workspace)
	case "findRelationshipsBetweenCollections":
		return d.findRelationships(ctx, arguments, workspace)
	case "pg_execute_query":
		return d.pgExecuteQuery(ctx, arguments, workspace)
	case "pg_get_schema_info":
		return d.pgSchemaInfo(ctx, arguments)
	case "pg_get_sample_data":
		return d.pgSampleData(ctx, arguments, workspace)
	case "pg_analyze_relationships":
		return d.pgAnalyzeRelationships(ctx, arguments)
	case "get_vehicle_data":
		return d.vehicleData(ctx, arguments, workspace)
	default:
		return nil, faults.New(faults.UnknownTool, "Unknown tool: %s", name)
	}
}

func (d *Dispatcher) findDocuments(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args findDocumentsArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("findDocuments", err), nil
	}
	if args.Collection == "" {
		return invalidArgs("findDocuments", faults.New(faults.InvalidArgument, "collection is required")), nil
	}
	docs, err := d.docs.Find(ctx, args.Collection, args.Query, findOptions(args.Options), workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderFindDocuments(args.Collection, docs)), nil
}

func (d *Dispatcher) findOneDocument(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args findOneDocumentArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("findOneDocument", err), nil
	}
	if args.Collection == "" || args.Query == nil {
		return invalidArgs("findOneDocument", faults.New(faults.InvalidArgument, "collection and query are required")), nil
	}
	doc, err := d.docs.FindOne(ctx, args.Collection, args.Query, findOptions(args.Options), workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderFindOneDocument(args.Collection, doc)), nil
}

func (d *Dispatcher) aggregateDocuments(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args aggregateDocumentsArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("aggregateDocuments", err), nil
	}
	if args.Collection == "" || len(args.Pipeline) == 0 {
		return invalidArgs("aggregateDocuments", faults.New(faults.InvalidArgument, "collection and pipeline are required")), nil
	}
	results, err := d.docs.Aggregate(ctx, args.Collection, args.Pipeline, workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderAggregate(args.Collection, results)), nil
}

func (d *Dispatcher) countDocuments(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args countDocumentsArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("countDocuments", err), nil
	}
	if args.Collection == "" {
		return invalidArgs("countDocuments", faults.New(faults.InvalidArgument, "collection is required")), nil
	}
	if args.Query == nil {
		args.Query = map[string]any{}
	}
	count, err := d.docs.Count(ctx, args.Collection, args.Query, workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderCount(args.Collection, count, args.Query)), nil
}

func (d *Dispatcher) listCollections(ctx context.Context) (*Response, error) {
	names, err := d.docs.ListCollections(ctx)
	if err != nil {
		return failure(err), nil
	}
	return renderListCollections(names), nil
}

func (d *Dispatcher) getCollectionSchema(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args getCollectionSchemaArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("getCollectionSchema", err), nil
	}
	if args.Collection == "" {
		return invalidArgs("getCollectionSchema", faults.New(faults.InvalidArgument, "collection is required")), nil
	}
	if args.SampleSize <= 0 {
		args.SampleSize = d.defaultSamples
	}
	report, err := introspect.Analyze(ctx, d.docs, args.Collection, args.SampleSize, introspect.DefaultMaxDepth, workspace)
	if err != nil {
		return failure(err), nil
	}
	return renderCollectionSchema(args.Collection, report), nil
}

func (d *Dispatcher) getSampleData(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args getSampleDataArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("getSampleData", err), nil
	}
	if args.Collection == "" {
		return invalidArgs("getSampleData", faults.New(faults.InvalidArgument, "collection is required")), nil
	}
	if args.Limit <= 0 {
		args.Limit = d.defaultSamples
	}
	projection := map[string]any{}
	for _, field := range args.Fields {
		projection[field] = 1
	}
	docs, err := d.docs.Find(ctx, args.Collection, map[string]any{}, mongostore.FindOptions{
		Limit:      int64(args.Limit),
		Projection: projection,
	}, workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderSampleData(args.Collection, docs)), nil
}

func (d *Dispatcher) findRelationships(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args findRelationshipsArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("findRelationshipsBetweenCollections", err), nil
	}
	if args.Collection1 == "" || args.Collection2 == "" {
		return invalidArgs("findRelationshipsBetweenCollections", faults.New(faults.InvalidArgument, "collection1 and collection2 are required")), nil
	}
	if args.SampleSize <= 0 {
		args.SampleSize = d.defaultSamples
	}
	report, err := d.inferrer.InferRelationships(ctx, args.Collection1, args.Collection2, args.Schema1, args.Schema2, args.SampleSize, workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderRelationships(args.Collection1, args.Collection2, report)), nil
}

func (d *Dispatcher) pgExecuteQuery(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args pgExecuteQueryArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("pg_execute_query", err), nil
	}
	if args.Query == "" {
		return invalidArgs("pg_execute_query", faults.New(faults.InvalidArgument, "query is required")), nil
	}
	res, err := d.warehouse.ExecuteQuery(ctx, args.Query, pgstore.QueryOptions{
		Limit:      args.Limit,
		Format:     args.Operation,
		Parameters: args.Parameters,
	}, workspace)
	if err != nil {
		if faults.Is(err, faults.NotAReadQuery) {
			return textResponse(400, "Error: query must be a SELECT statement or a CTE (WITH construct)"), nil
		}
		return failure(err), nil
	}
	return textResponse(200, renderQueryResult(res)), nil
}

func (d *Dispatcher) pgSchemaInfo(ctx context.Context, arguments map[string]any) (*Response, error) {
	var args pgSchemaInfoArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("pg_get_schema_info", err), nil
	}
	if args.TableName != "" {
		info, err := d.warehouse.TableInfo(ctx, args.TableName)
		if err != nil {
			return failure(err), nil
		}
		return renderSchemaInfo(args.TableName, info), nil
	}
	tables, err := d.warehouse.SchemaInfo(ctx)
	if err != nil {
		return failure(err), nil
	}
	return renderSchemaInfo("", tables), nil
}

func (d *Dispatcher) pgSampleData(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args pgSampleDataArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("pg_get_sample_data", err), nil
	}
	if args.TableName == "" {
		return invalidArgs("pg_get_sample_data", faults.New(faults.InvalidArgument, "tableName is required")), nil
	}
	if args.Limit <= 0 {
		args.Limit = 3
	}
	rows, err := d.warehouse.SampleRows(ctx, args.TableName, args.Limit, args.Columns, workspace)
	if err != nil {
		return failure(err), nil
	}
	return textResponse(200, renderTableSamples(args.TableName, rows)), nil
}

func (d *Dispatcher) pgAnalyzeRelationships(ctx context.Context, arguments map[string]any) (*Response, error) {
	var args pgAnalyzeRelationshipsArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("pg_analyze_relationships", err), nil
	}
	rel, err := d.warehouse.AnalyzeRelationships(ctx)
	if err != nil {
		return failure(err), nil
	}
	return renderTableRelationships(rel), nil
}

func (d *Dispatcher) vehicleData(ctx context.Context, arguments map[string]any, workspace string) (*Response, error) {
	var args vehicleDataArgs
	if err := decodeArgs(arguments, &args); err != nil {
		return invalidArgs("get_vehicle_data", err), nil
	}
	if args.LicensePlate == "" {
		return textResponse(400, "Error: equipment license plate not provided"), nil
	}
	snap, err := d.warehouse.Equipment(ctx, args.LicensePlate, workspace)
	if err != nil {
		return textResponse(500, fmt.Sprintf("Failed to fetch equipment data for %s: %v", args.LicensePlate, err)), nil
	}
	return textResponse(200, renderEquipment(args.LicensePlate, snap)), nil
}

func findOptions(opts *findOptionsArgs) mongostore.FindOptions {
	if opts == nil {
		return mongostore.FindOptions{}
	}
	return mongostore.FindOptions{
		Limit:      int64(opts.Limit),
		Skip:       int64(opts.Skip),
		Sort:       opts.Sort,
		Projection: opts.Projection,
	}
}

func invalidArgs(tool string, err error) *Response {
	return textResponse(400, fmt.Sprintf("Invalid arguments for %s: %v", tool, err))
}

// failure renders an execution fault as a tool result so the model can
// react to it within the iteration budget.
func failure(err error) *Response {
	status := 500
	if faults.Is(err, faults.InvalidArgument) {
		status = 400
	}
	return textResponse(status, fmt.Sprintf("Tool execution failed: %v", err))
}
