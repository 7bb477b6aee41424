package kv

// Store defines the interface for a key-value store.
// Implementations of this interface can be swapped out,
// allowing the Store Service to serve any backing map.
type Store interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists, or empty string and false if not.
	// A missing key is not an error.
	Get(key string) (string, bool)

	// Set stores a key-value pair, overwriting any previous value.
	// Returns an error if the operation fails.
	Set(key, value string) error
}
