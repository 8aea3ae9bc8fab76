// Package observe defines the narrow metrics hook surface the streaming
// core reports through. The core never depends on an exporter: absence of
// an observer (the Nop default) must not alter behavior. LogObserver and
// OTelObserver are the bundled implementations; Multi fans out to several.
package observe
