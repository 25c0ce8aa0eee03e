//go:build !cgo
// +build !cgo

package storage

import _ "modernc.org/sqlite"

// Pure-Go driver for builds without CGO.
const sqliteDriver = "sqlite"
