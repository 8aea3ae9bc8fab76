// Package httpserver provides the REST gateway for StreamWeaver: JSON
// endpoints for session lifecycle and publishing, an SSE endpoint for
// browser streams, and a WebSocket endpoint for bidirectional clients.
//
// Example:
//
//	svc := stream.NewService(stream.Options{Store: store.NewMemory()})
//	s := httpserver.New(svc, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
