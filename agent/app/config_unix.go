//go:build !windows
// +build !windows

package app

const defaultSQLiteConnectionString = "file:/var/lib/accella/db/sqlite.db?cache=shared"
