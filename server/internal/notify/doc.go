// Package notify implements the emergency notification dispatcher and its
// transports.
//
// Dispatcher.DispatchEmergency runs every transport in its own goroutine with
// a per-transport timeout, waits for all of them, and returns an Outcome
// holding one Result per transport. A failing transport is logged with its
// name and reason and never blocks or fails the others. There are no retries:
// delivery is at most once per ingestion.
//
// Transports:
//   - Email   SMTP, emergency notice and monthly report summaries
//   - SMS     Twilio Messages API, emergency notice and free-form updates
//   - Webhook Slack, Teams or generic HTTP JSON POST
package notify
