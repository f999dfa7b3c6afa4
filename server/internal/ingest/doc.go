// Package ingest runs one reading through the pulsewatch pipeline:
// validate, persist, evaluate thresholds, create alerts, notify on
// emergency and publish to live subscribers.
//
// Each call to Coordinator.Ingest is an independent unit of work; there is
// no global ingestion lock. Once the sample is persisted the remaining steps
// run to completion even if the caller goes away.
package ingest
