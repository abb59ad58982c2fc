//go:build windows
// +build windows

package app

const defaultSQLiteConnectionString = "file:C:\\ProgramData\\accella\\db\\sqlite.db?cache=shared"
