package redis

import "github.com/redis/rueidis"

// NewStoreForTest wires a Store around an arbitrary rueidis client, for mocks.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
