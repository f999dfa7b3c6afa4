// Package ws serves the live WebSocket channel of pulsewatch-server.
//
// Each connected client gets its own live.Subscription. Every ingested sample
// arrives as one text frame:
//
//	{
//	  "event": "healthDataUpdate",
//	  "data":  { "sample": { ... }, "alerts": [ ... ] }
//	}
//
// A client that falls behind is dropped by the publisher; the hub then sends
// a close frame and tears the connection down. Hub.Run(ctx) disconnects all
// clients on shutdown. The endpoint is mounted at /ws/stream.
package ws
