// Package rpc defines the gRPC ingestion service shared by pulsewatch-agent
// and pulsewatch-server.
//
// Messages are the plain Go types from pkg/types carried by a JSON codec
// registered under the "json" content-subtype, so no generated protobuf code
// is involved. Clients must call with grpc.CallContentSubtype(Codec); the
// IngestClient here does so on every call.
//
//	service pulsewatch.v1.IngestService {
//	  rpc Ingest(Reading) returns (IngestResponse);
//	}
package rpc
