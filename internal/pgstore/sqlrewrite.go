package pgstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	fromTableRe = regexp.MustCompile(`(?i)\bfrom\s+([\w.]+)`)
	tailRe      = regexp.MustCompile(`(?i)\b(order\s+by|group\s+by|having|limit|offset)\b`)
	whereRe     = regexp.MustCompile(`(?i)\bwhere\b`)
	limitRe     = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	hexIDRe     = regexp.MustCompile(`(?i)(\b(?:_?id|[a-z_]+_id)\s*=\s*['"])([0-9a-fA-F]{24})(['"])`)
)

// DeterministicUUID maps an external identifier (a workspace tag or a hex
// object id) to the UUID stored in the relational tables: UUIDv5 over the
// DNS namespace, the derivation the data migration used.
func DeterministicUUID(value string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(value)).String()
}

// InjectTenantFilter rewrites a read query so it only sees one workspace's
// rows. The predicate is ANDed into an existing WHERE clause, or inserted
// before any trailing ORDER BY / GROUP BY / HAVING / LIMIT / OFFSET.
// Queries that already mention workspace_id are returned unchanged.
func InjectTenantFilter(query, workspace string) string {
	if workspace == "" || strings.Contains(strings.ToLower(query), "workspace_id") {
		return query
	}

	m := fromTableRe.FindStringSubmatch(query)
	if m == nil {
		return query
	}
	table := m[1]
	predicate := fmt.Sprintf("%s.workspace_id = '%s'", table, DeterministicUUID(workspace))

	if loc := whereRe.FindStringIndex(query); loc != nil {
		return query[:loc[1]] + " " + predicate + " AND" + query[loc[1]:]
	}
	if loc := tailRe.FindStringIndex(query); loc != nil {
		return strings.TrimRight(query[:loc[0]], " ") + " WHERE " + predicate + " " + query[loc[0]:]
	}
	return strings.TrimRight(query, " ;") + " WHERE " + predicate
}

// RewriteHexIDs replaces quoted 24-hex identifier literals in id-column
// comparisons with their deterministic UUID rendering, so ids copied out of
// the document store compare against relational keys. Migration used the
// same UUIDv5 derivation over the hex string.
func RewriteHexIDs(query string) string {
	return hexIDRe.ReplaceAllStringFunc(query, func(match string) string {
		parts := hexIDRe.FindStringSubmatch(match)
		return parts[1] + DeterministicUUID(parts[2]) + parts[3]
	})
}

// IsReadQuery reports whether the statement is a plain read (SELECT or a
// WITH chain ending in one).
func IsReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH")
}

// EnsureLimit appends an advisory LIMIT when the query has none.
func EnsureLimit(query string, limit int) string {
	if limit <= 0 || limitRe.MatchString(query) {
		return query
	}
	return strings.TrimRight(query, " ;") + fmt.Sprintf(" LIMIT %d", limit)
}

// HasCountAggregate reports whether the query already computes a count on
// its own. Wrapping such a query would count its single result row and
// always yield 1.
func HasCountAggregate(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "count(") || strings.Contains(q, "count (")
}

// HasExistsPredicate reports whether the query already carries an EXISTS
// of its own.
func HasExistsPredicate(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "exists(") || strings.Contains(q, "exists (")
}

// CountWrap rewrites a query to return its row count as `total`.
func CountWrap(query string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS total FROM (%s) AS subquery", strings.TrimRight(query, " ;"))
}

// ExistsWrap rewrites a query to return whether it yields any row.
func ExistsWrap(query string) string {
	return fmt.Sprintf("SELECT EXISTS (%s) AS exists", strings.TrimRight(query, " ;"))
}
