// Package logger is the structured session event log for the shell.
//
// Entries are newline delimited JSON produced by protojson from a
// google.protobuf.Struct, so any protobuf-aware tool can read them back.
package logger
