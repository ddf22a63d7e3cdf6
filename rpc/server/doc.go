// Package server implements the RPC server exposing one resource.Resource
// over a pluggable transport and serializer.
//
// The package focuses on:
//   - Server-side RPC request handling for the resource façade's command set
//     (Create, Modify, Delete, Flush, Query, RevisionReplayed,
//     SynchronizeRequest, Shutdown)
//   - Adapter pattern to decouple the wire protocol from the façade's Job-based
//     async API: the adapter blocks on each Job's Wait(ctx) so an RPC response
//     is always synchronous from the client's point of view
//   - Domain-specific synchronization routines supplied by the caller, since
//     this module has no remote source of its own to synchronize against
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     resource.Resource.
//
//   - NewResourceServerAdapter: Factory function creating the adapter that
//     translates RPC requests into resource.Resource method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  ResourceID: "contacts",
//	  StorageDir: "/var/lib/sinkdb/contacts",
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	  res,
//	  syncRunners,
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	The Serve method is not thread-safe and should be called only once.
package server
