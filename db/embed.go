// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the DDL for all application tables, indexes and the
// register closing routine. It is safe to apply repeatedly.
//
//go:embed migrations/001_schema.sql
var Schema string
