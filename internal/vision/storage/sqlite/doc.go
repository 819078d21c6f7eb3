// Package sqlite records tracking sessions to SQLite: one row per
// processed frame and one observation per track per frame. The schema is
// embedded and applied with golang-migrate when the store is opened.
package sqlite
