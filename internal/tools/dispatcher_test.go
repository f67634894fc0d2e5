package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/mongostore"
	"github.com/fleetmetry/fleetmetry/internal/pgstore"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

type fakeDocs struct {
	findDocs      []map[string]any
	findErr       error
	lastWorkspace string
	lastFilter    map[string]any
	lastOptions   mongostore.FindOptions
	collections   []string
	countValue    int64
}

func (f *fakeDocs) Find(_ context.Context, _ string, filter map[string]any, opts mongostore.FindOptions, workspace string) ([]map[string]any, error) {
	f.lastFilter, f.lastOptions, f.lastWorkspace = filter, opts, workspace
	return f.findDocs, f.findErr
}

func (f *fakeDocs) FindOne(ctx context.Context, collection string, filter map[string]any, opts mongostore.FindOptions, workspace string) (map[string]any, error) {
	docs, err := f.Find(ctx, collection, filter, opts, workspace)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (f *fakeDocs) Aggregate(_ context.Context, _ string, _ []any, workspace string) ([]map[string]any, error) {
	f.lastWorkspace = workspace
	return f.findDocs, f.findErr
}

func (f *fakeDocs) Count(_ context.Context, _ string, filter map[string]any, workspace string) (int64, error) {
	f.lastFilter, f.lastWorkspace = filter, workspace
	return f.countValue, f.findErr
}

func (f *fakeDocs) ListCollections(_ context.Context) ([]string, error) {
	return f.collections, f.findErr
}

func (f *fakeDocs) Sample(_ context.Context, _ string, limit int, workspace string) ([]map[string]any, error) {
	f.lastWorkspace = workspace
	if limit < len(f.findDocs) {
		return f.findDocs[:limit], f.findErr
	}
	return f.findDocs, f.findErr
}

type fakeWarehouse struct {
	result        *pgstore.QueryResult
	err           error
	snapshot      *pgstore.EquipmentSnapshot
	lastWorkspace string
	lastOpts      pgstore.QueryOptions
}

func (f *fakeWarehouse) ExecuteQuery(_ context.Context, query string, opts pgstore.QueryOptions, workspace string) (*pgstore.QueryResult, error) {
	f.lastWorkspace = workspace
	f.lastOpts = opts
	if !pgstore.IsReadQuery(query) {
		return nil, faults.New(faults.NotAReadQuery, "only SELECT queries are allowed")
	}
	return f.result, f.err
}

func (f *fakeWarehouse) SchemaInfo(_ context.Context) ([]string, error) {
	return []string{"daily_history_wfd"}, f.err
}

func (f *fakeWarehouse) TableInfo(_ context.Context, table string) (*pgstore.TableInfo, error) {
	return &pgstore.TableInfo{TableName: table}, f.err
}

func (f *fakeWarehouse) SampleRows(_ context.Context, _ string, _ int, _ []string, workspace string) ([]map[string]any, error) {
	f.lastWorkspace = workspace
	return []map[string]any{{"plate": "048YLE04"}}, f.err
}

func (f *fakeWarehouse) AnalyzeRelationships(_ context.Context) (*pgstore.Relationships, error) {
	return &pgstore.Relationships{}, f.err
}

func (f *fakeWarehouse) Equipment(_ context.Context, plate, workspace string) (*pgstore.EquipmentSnapshot, error) {
	f.lastWorkspace = workspace
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return &pgstore.EquipmentSnapshot{LicensePlate: plate}, f.err
}

type fakeInferrer struct {
	report *models.RelationshipReport
	err    error
}

func (f *fakeInferrer) InferRelationships(_ context.Context, _, _ string, _, _ models.InferredSchema, _ int, _ string) (*models.RelationshipReport, error) {
	return f.report, f.err
}

func newTestDispatcher(docs *fakeDocs, wh *fakeWarehouse) *Dispatcher {
	return NewDispatcher(docs, wh, &fakeInferrer{}, 5)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(&fakeDocs{}, &fakeWarehouse{})
	_, err := d.Dispatch(context.Background(), "launchMissiles", map[string]any{})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.UnknownTool))
}

func TestDispatchStripsTenantTag(t *testing.T) {
	docs := &fakeDocs{findDocs: []map[string]any{{"status": "open"}}}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	resp, err := d.Dispatch(context.Background(), "findDocuments", map[string]any{
		"collection": "defects",
		"query":      map[string]any{"status": "open", "workspace_id": "northfleet"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "northfleet", docs.lastWorkspace)
	_, leaked := docs.lastFilter["workspace_id"]
	assert.False(t, leaked, "tenant tag must not reach the query layer")
}

func TestDispatchFindDocumentsRendersText(t *testing.T) {
	docs := &fakeDocs{findDocs: []map[string]any{{"_id": "1"}, {"_id": "2"}}}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	resp, err := d.Dispatch(context.Background(), "findDocuments", map[string]any{"collection": "defects"})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Contains(t, resp.Content[0].Text, "Found 2 documents in collection 'defects'")
}

func TestDispatchMissingCollectionIsInvalidArgument(t *testing.T) {
	d := newTestDispatcher(&fakeDocs{}, &fakeWarehouse{})
	resp, err := d.Dispatch(context.Background(), "findDocuments", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
	assert.Contains(t, resp.Content[0].Text, "Invalid arguments")
}

func TestDispatchExecutionFailureStillYieldsText(t *testing.T) {
	docs := &fakeDocs{findErr: faults.New(faults.QueryExecutionFailed, "replica set down")}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	resp, err := d.Dispatch(context.Background(), "findDocuments", map[string]any{"collection": "defects"})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.Status)
	require.NotEmpty(t, resp.Content)
	assert.Contains(t, resp.Content[0].Text, "Tool execution failed")
}

func TestDispatchListCollectionsTwoBlocks(t *testing.T) {
	docs := &fakeDocs{collections: []string{"defects", "equipments"}}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	resp, err := d.Dispatch(context.Background(), "listCollections", map[string]any{})
	require.NoError(t, err)
	require.Len(t, resp.Content, 2)
	assert.Contains(t, resp.Content[0].Text, "Found 2 collections")
	assert.Contains(t, resp.Content[1].Text, "defects")
}

func TestDispatchCountDefaultsEmptyQuery(t *testing.T) {
	docs := &fakeDocs{countValue: 7}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	resp, err := d.Dispatch(context.Background(), "countDocuments", map[string]any{"collection": "defects"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content[0].Text, "Found 7 documents in collection 'defects' matching query: {}")
}

func TestDispatchPgRejectsWrites(t *testing.T) {
	d := newTestDispatcher(&fakeDocs{}, &fakeWarehouse{})
	resp, err := d.Dispatch(context.Background(), "pg_execute_query", map[string]any{
		"operation": "select",
		"query":     "DELETE FROM defect_acts",
	})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
	assert.Contains(t, resp.Content[0].Text, "must be a SELECT statement")
}

func TestDispatchPgCount(t *testing.T) {
	wh := &fakeWarehouse{result: &pgstore.QueryResult{Count: 42, Format: "count"}}
	d := newTestDispatcher(&fakeDocs{}, wh)

	resp, err := d.Dispatch(context.Background(), "pg_execute_query", map[string]any{
		"operation": "count",
		"query":     "SELECT * FROM defect_acts",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content[0].Text, "Total rows: 42")
}

func TestDispatchPgForwardsParameters(t *testing.T) {
	wh := &fakeWarehouse{result: &pgstore.QueryResult{Format: "select"}}
	d := newTestDispatcher(&fakeDocs{}, wh)

	_, err := d.Dispatch(context.Background(), "pg_execute_query", map[string]any{
		"operation":  "select",
		"query":      "SELECT * FROM defect_acts WHERE status = $1",
		"parameters": []any{"open"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"open"}, wh.lastOpts.Parameters)
}

func TestDispatchVehicleDataRequiresPlate(t *testing.T) {
	d := newTestDispatcher(&fakeDocs{}, &fakeWarehouse{})
	resp, err := d.Dispatch(context.Background(), "get_vehicle_data", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
	assert.Contains(t, resp.Content[0].Text, "license plate not provided")
}

func TestDispatchVehicleData(t *testing.T) {
	mileage := 120500.0
	wh := &fakeWarehouse{snapshot: &pgstore.EquipmentSnapshot{
		LicensePlate: "048YLE04", Mileage: &mileage, Found: true,
	}}
	d := newTestDispatcher(&fakeDocs{}, wh)

	resp, err := d.Dispatch(context.Background(), "get_vehicle_data", map[string]any{
		"license_plate": "048YLE04",
		"workspace_id":  "northfleet",
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, resp.Content[0].Text, "Found data for equipment 048YLE04")
	assert.Equal(t, "northfleet", wh.lastWorkspace)
}

func TestDispatchStringifiedQueryAccepted(t *testing.T) {
	docs := &fakeDocs{findDocs: []map[string]any{}}
	d := newTestDispatcher(docs, &fakeWarehouse{})

	_, err := d.Dispatch(context.Background(), "findDocuments", map[string]any{
		"collection": "defects",
		"query":      `{"status": "open"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "open", docs.lastFilter["status"])
}

func TestCatalogNamesAreStable(t *testing.T) {
	want := []string{
		"findDocuments", "findOneDocument", "aggregateDocuments", "countDocuments",
		"listCollections", "getCollectionSchema", "getSampleData",
		"findRelationshipsBetweenCollections",
		"pg_execute_query", "pg_get_schema_info", "pg_get_sample_data",
		"pg_analyze_relationships", "get_vehicle_data",
	}
	catalog := Catalog()
	require.Len(t, catalog, len(want))
	for i, spec := range catalog {
		assert.Equal(t, want[i], spec.Name)
		assert.NotEmpty(t, spec.Description)
	}
}
