// Package model holds the data types shared by the duewatch engine.
//
// This package contains type definitions and collection names only. Every
// other internal package imports model; model imports nothing internal.
//
// JSON field names follow the wire format written by the foreground
// application (Spanish, camelCase), so the store can be shared with it.
package model
