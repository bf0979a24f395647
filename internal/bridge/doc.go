// Package bridge answers raw SQL queries against provisioned databases and
// serves text resources from the bundle.
//
// Every query opens its own read-only handle on the named file, so the
// bridge can never modify a provisioned database and needs no lock. The
// handle and cursor are released on every exit path.
//
// ExecuteQuery returns a single JSON string for both outcomes:
//
//	[{"id":1,"word":"alpha"}, ...]   rows in cursor order
//	{"error":"<message>"}            any failure
//
// Each value maps by its storage class, not by the column's declared type:
// INTEGER to a JSON integer, REAL to a JSON number, TEXT to a JSON string,
// NULL to null. BLOB values are left out of the row entirely. A DATE column
// holding '2024-01-01' therefore yields that text unchanged. When a result
// has duplicate column names the last non-BLOB value wins. Only the first
// statement of a query runs.
package bridge
