// Package ports defines the interfaces that connect the application layer to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [Sink]: consumes aligned tuples (CSV files, SQLite index, HTTP collector)
//   - [RecordReader]: delivers undecoded arrivals from a feed
//   - [Decoder]: turns records into payloads
//   - [StatusRepository]: persists run status
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them.
package ports
