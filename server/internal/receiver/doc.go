// Package receiver implements rpc.IngestServer, the gRPC endpoint that
// accepts readings from pulsewatch-agent instances.
//
// Receiver.Ingest hands each reading to the ingestion coordinator and maps
// its errors to status codes: validation failures become
// codes.InvalidArgument, everything else codes.Internal.
// LoggingInterceptor logs each call and recovers handler panics.
package receiver
