// Package log provides StreamWeaver's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by zerolog,
// so output is structured JSON by default with an optional human-readable
// console format.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.FormatText),
//	)
//	l = l.With(log.Component("stream"), log.Str("session", id))
//	l.Info("stream attached", log.Int("replayed", n))
package log
