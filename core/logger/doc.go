// Package logger is a standardized event logging framework for cmdrun.
//
// Every directive that is executed produces one DirectiveEvent. Events are
// stored as newline delimited JSON, one google.protobuf.Struct per line, so
// they can be consumed by anything that understands protobuf JSON.
package logger
