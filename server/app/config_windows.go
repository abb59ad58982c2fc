//go:build windows
// +build windows

package app

const (
	defaultLocalBlobStoreDir      = "C:\\ProgramData\\accella\\blob"
	defaultSQLiteConnectionString = "file:C:\\ProgramData\\accella\\db\\sqlite.db?cache=shared"
)
