// Package shipper sends readings to pulsewatch-server over gRPC
// (pulsewatch.v1.IngestService/Ingest, JSON codec).
//
// Shipper.Ship() is non-blocking: readings are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is
// evicted so the latest vitals are always preserved.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// Permanent gRPC errors (InvalidArgument, Unauthenticated, PermissionDenied)
// discard the reading immediately rather than retrying.
//
// Transport: TLS (optionally mutual) via credentials.NewTLS(), or plaintext
// for local development. The dialFn field is injectable for testing.
package shipper
