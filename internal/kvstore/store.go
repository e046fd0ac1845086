/*
Package kvstore is a minimal key/value persistence interface with a
pogreb-backed implementation, adapted from the store package
(Store.go/Pogreb.go) and narrowed to what the inbound filter and handshake
bookkeeping need: no expiration, no DHT-specific methods.
*/
package kvstore

// Store is implemented by anything that can persist small key/value pairs.
type Store interface {
	Set(key, value []byte) error
	Get(key []byte) (value []byte, found bool)
	Delete(key []byte) error
	Iterate(fn func(key, value []byte))
	Close() error
}
