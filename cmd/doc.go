// Package cmd implements the command-line interface for sinkdb. It provides
// a hierarchical command structure with operations for running a resource
// process and interacting with one as a client.
//
// The package is organized into several subpackages:
//
//   - resource: Commands for entity operations against a running resource
//     (create, modify, remove, query, sync, flush)
//   - serve: Commands for starting and configuring a resource process
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See sinkdb -help for a list of all commands.
package cmd
