package kvstore

import "context"

// Store is a durable string-keyed value store. Get reports a missing key with
// found == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
