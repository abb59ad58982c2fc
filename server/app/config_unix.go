//go:build !windows
// +build !windows

package app

const (
	defaultLocalBlobStoreDir      = "/var/lib/accella/blob"
	defaultSQLiteConnectionString = "file:/var/lib/accella/db/sqlite.db?cache=shared"
)
