package pgstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeterministicUUID(t *testing.T) {
	a := DeterministicUUID("northfleet")
	b := DeterministicUUID("northfleet")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DeterministicUUID("southfleet"))

	u, err := uuid.Parse(a)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Version(5), u.Version())
}

func TestInjectTenantFilterNoWhere(t *testing.T) {
	out := InjectTenantFilter("SELECT * FROM defects", "northfleet")
	want := "SELECT * FROM defects WHERE defects.workspace_id = '" + DeterministicUUID("northfleet") + "'"
	assert.Equal(t, want, out)
}

func TestInjectTenantFilterExistingWhere(t *testing.T) {
	out := InjectTenantFilter("SELECT * FROM defects WHERE status = 'open'", "northfleet")
	want := "SELECT * FROM defects WHERE defects.workspace_id = '" + DeterministicUUID("northfleet") + "' AND status = 'open'"
	assert.Equal(t, want, out)
}

func TestInjectTenantFilterBeforeOrderBy(t *testing.T) {
	out := InjectTenantFilter("SELECT * FROM defects ORDER BY created_at", "northfleet")
	want := "SELECT * FROM defects WHERE defects.workspace_id = '" + DeterministicUUID("northfleet") + "' ORDER BY created_at"
	assert.Equal(t, want, out)
}

func TestInjectTenantFilterBeforeGroupBy(t *testing.T) {
	out := InjectTenantFilter("SELECT status, COUNT(*) FROM defects GROUP BY status", "northfleet")
	assert.Contains(t, out, "FROM defects WHERE defects.workspace_id = '")
	assert.Contains(t, out, "' GROUP BY status")
}

func TestInjectTenantFilterIdempotent(t *testing.T) {
	q := "SELECT * FROM defects WHERE workspace_id = 'abc'"
	assert.Equal(t, q, InjectTenantFilter(q, "northfleet"))
}

func TestInjectTenantFilterNoWorkspace(t *testing.T) {
	q := "SELECT * FROM defects"
	assert.Equal(t, q, InjectTenantFilter(q, ""))
}

func TestInjectTenantFilterQualifiedTable(t *testing.T) {
	out := InjectTenantFilter("SELECT * FROM common_data.defects", "northfleet")
	assert.Contains(t, out, "common_data.defects.workspace_id = '")
}

func TestRewriteHexIDs(t *testing.T) {
	hex := "507f1f77bcf86cd799439011"
	out := RewriteHexIDs("SELECT * FROM defects WHERE equipment_id = '" + hex + "'")
	assert.Equal(t, "SELECT * FROM defects WHERE equipment_id = '"+DeterministicUUID(hex)+"'", out)
}

func TestRewriteHexIDsLeavesNonIDColumns(t *testing.T) {
	hex := "507f1f77bcf86cd799439011"
	q := "SELECT * FROM defects WHERE serial = '" + hex + "'"
	assert.Equal(t, q, RewriteHexIDs(q))
}

func TestRewriteHexIDsLeavesShortValues(t *testing.T) {
	q := "SELECT * FROM defects WHERE equipment_id = 'abc123'"
	assert.Equal(t, q, RewriteHexIDs(q))
}

func TestIsReadQuery(t *testing.T) {
	assert.True(t, IsReadQuery("SELECT 1"))
	assert.True(t, IsReadQuery("  select * from t"))
	assert.True(t, IsReadQuery("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, IsReadQuery("DELETE FROM t"))
	assert.False(t, IsReadQuery("UPDATE t SET a = 1"))
	assert.False(t, IsReadQuery("INSERT INTO t VALUES (1)"))
	assert.False(t, IsReadQuery("DROP TABLE t"))
}

func TestEnsureLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t LIMIT 50", EnsureLimit("SELECT * FROM t", 50))
	assert.Equal(t, "SELECT * FROM t LIMIT 5", EnsureLimit("SELECT * FROM t LIMIT 5", 50))
	assert.Equal(t, "SELECT * FROM t", EnsureLimit("SELECT * FROM t", 0))
}

func TestWraps(t *testing.T) {
	assert.Equal(t, "SELECT COUNT(*) AS total FROM (SELECT * FROM t) AS subquery", CountWrap("SELECT * FROM t;"))
	assert.Equal(t, "SELECT EXISTS (SELECT * FROM t) AS exists", ExistsWrap("SELECT * FROM t"))
}

func TestHasCountAggregate(t *testing.T) {
	assert.True(t, HasCountAggregate("SELECT COUNT(*) FROM t"))
	assert.True(t, HasCountAggregate("select count (id) from t"))
	assert.False(t, HasCountAggregate("SELECT * FROM t"))
}

func TestHasExistsPredicate(t *testing.T) {
	assert.True(t, HasExistsPredicate("SELECT EXISTS (SELECT 1 FROM t)"))
	assert.True(t, HasExistsPredicate("SELECT * FROM t WHERE NOT EXISTS(SELECT 1 FROM u)"))
	assert.False(t, HasExistsPredicate("SELECT * FROM t"))
}
