// Package pebblestore wraps a Pebble database with the small surface the
// session store needs: point reads and writes, prefix scans, and a
// configurable sync policy. Values returned by Get are always copies.
package pebblestore
