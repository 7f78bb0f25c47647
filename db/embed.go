// Package db embeds the schema for the catalog, order, and session tables.
package db

import _ "embed"

// Schema holds the DDL for products, orders, order_lines, and sessions. It
// is applied idempotently on startup and by the catalog loader.
//
//go:embed migrations/001_schema.sql
var Schema string
