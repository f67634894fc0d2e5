package tools

import "github.com/fleetmetry/fleetmetry/pkg/models"

// Catalog is the static tool surface the model can call. Names are part of
// the wire contract between the chat service and the tool server.
func Catalog() []models.ToolSpec {
	return []models.ToolSpec{
		{
			Name:        "findDocuments",
			Description: "Find and retrieve documents from a MongoDB collection. Use this when you need to see actual document contents or search by specific criteria.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to query (for example 'defects', 'equipments', 'brands')"},
					"query":      {Type: "object", Description: "Query filter object to match documents"},
					"options": {Type: "object", Description: "Optional query modifiers", Properties: map[string]*models.Property{
						"limit":      {Type: "integer", Description: "Maximum number of documents to return (default: no limit)"},
						"skip":       {Type: "integer", Description: "Number of documents to skip for pagination"},
						"sort":       {Type: "object", Description: "Sort criteria: {field: 1} ascending, {field: -1} descending"},
						"projection": {Type: "object", Description: "Fields to include (1) or exclude (0): {'name': 1, '_id': 0}"},
					}},
				},
				Required: []string{"collection"},
			},
		},
		{
			Name:        "findOneDocument",
			Description: "Find a single document in a MongoDB collection. Use this when you need exactly one document by id or specific criteria.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to query"},
					"query":      {Type: "object", Description: "Query filter to locate the document"},
					"options": {Type: "object", Properties: map[string]*models.Property{
						"projection": {Type: "object", Description: "Fields to include or exclude in the result"},
					}},
				},
				Required: []string{"collection", "query"},
			},
		},
		{
			Name:        "aggregateDocuments",
			Description: "Run an aggregation pipeline on a MongoDB collection. Use this for complex queries such as grouping, counting by field, or finding max/min values.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to aggregate"},
					"pipeline": {Type: "array", Description: "MongoDB aggregation pipeline stages. Example: [{'$group': {'_id': '$field', 'count': {'$sum': 1}}}, {'$sort': {'count': -1}}]",
						Items: &models.Property{Type: "object"}},
				},
				Required: []string{"collection", "pipeline"},
			},
		},
		{
			Name:        "countDocuments",
			Description: "Count documents in a MongoDB collection. To count all documents pass an empty query object: {}",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to count documents in"},
					"query":      {Type: "object", Description: "Filter object to count specific documents"},
				},
				Required: []string{"collection"},
			},
		},
		{
			Name:        "listCollections",
			Description: "List every collection in the database to understand its structure",
			InputSchema: models.ParameterSchema{Type: "object", Properties: map[string]*models.Property{}},
		},
		{
			Name:        "getCollectionSchema",
			Description: "Analyze the structure and field types of a MongoDB collection to understand which fields are available for queries",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to analyze"},
					"sampleSize": {Type: "integer", Description: "Number of documents to sample for schema analysis", Default: 5},
				},
				Required: []string{"collection"},
			},
		},
		{
			Name:        "getSampleData",
			Description: "Fetch sample documents from a collection to understand data structure and field types. Useful for debugging query problems.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection": {Type: "string", Description: "Collection to sample"},
					"limit":      {Type: "integer", Description: "Number of sample documents to return", Default: 5},
					"fields": {Type: "array", Description: "Specific fields to show (leave empty for all fields)",
						Items: &models.Property{Type: "string"}},
				},
				Required: []string{"collection"},
			},
		},
		{
			Name:        "findRelationshipsBetweenCollections",
			Description: "Analyzes two MongoDB collections and detects possible relationships between them, such as foreign keys.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"collection1": {Type: "string", Description: "First collection to analyze"},
					"collection2": {Type: "string", Description: "Second collection to analyze"},
					"schema1":     {Type: "object", Description: "Schema of the first collection"},
					"schema2":     {Type: "object", Description: "Schema of the second collection"},
					"sampleSize":  {Type: "integer", Description: "Number of documents to sample when verifying relationships", Default: 5},
				},
				Required: []string{"collection1", "collection2", "schema1", "schema2"},
			},
		},
		{
			Name:        "pg_execute_query",
			Description: "Execute SELECT queries and data retrieval operations. Use this for SELECT, WITH constructs and other read operations.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"operation": {Type: "string", Description: "Query operation: select (fetch rows), count (count rows), exists (check existence)",
						Enum: []string{"select", "count", "exists"}},
					"query": {Type: "string", Description: "SQL SELECT query to execute"},
					"parameters": {Type: "array", Description: "Parameter values for prepared-statement placeholders ($1, $2, etc.)",
						Items: &models.Property{}},
					"limit": {Type: "integer", Description: "Maximum number of rows to return (safety limit)"},
				},
				Required: []string{"operation", "query"},
			},
		},
		{
			Name:        "pg_get_schema_info",
			Description: "Get schema information for the database or a specific table. Use this to understand table structure.",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"tableName": {Type: "string", Description: "Optional table name to fetch a detailed schema for"},
				},
			},
		},
		{
			Name:        "pg_get_sample_data",
			Description: "Fetch sample rows from a PostgreSQL table to understand data structure",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"tableName": {Type: "string", Description: "Table to sample"},
					"limit":     {Type: "integer", Description: "Number of sample rows to return", Default: 3},
					"columns": {Type: "array", Description: "Specific columns to show (leave empty for all columns)",
						Items: &models.Property{Type: "string"}},
				},
				Required: []string{"tableName"},
			},
		},
		{
			Name:        "pg_analyze_relationships",
			Description: "Analyze relationships between PostgreSQL tables based on foreign keys",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"includeImplicitRelations": {Type: "boolean", Description: "Also look for implicit relationships based on column naming patterns", Default: false},
				},
			},
		},
		{
			Name:        "get_vehicle_data",
			Description: "Fetch current equipment data for pre-filling a defect form by license plate number",
			InputSchema: models.ParameterSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"license_plate": {Type: "string", Description: "Equipment license plate number (for example: 048YLE04, 023WS02)"},
				},
				Required: []string{"license_plate"},
			},
		},
	}
}
