// Package live fans ingested events out to live subscribers.
//
// Every subscriber owns a bounded queue. Publish never blocks: a subscriber
// whose queue is full is dropped and its channel closed, so one slow
// consumer cannot stall ingestion or starve the others.
package live
