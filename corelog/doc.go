// Package corelog provides the named, leveled loggers used throughout this
// module: a small logger keyed by package name, formatted through the
// standard library's log package, with a global level threshold set once
// at startup from configuration.
package corelog
