package repository

import (
	"context"

	"storefront-customer-layer/internal/ports"
)

type prefixedStore struct {
	store  ports.KeyValueStore
	prefix string
}

// WithPrefix namespaces every key of store, giving each visitor its own slots
// in a shared backend.
func WithPrefix(store ports.KeyValueStore, prefix string) ports.KeyValueStore {
	return &prefixedStore{store: store, prefix: prefix}
}

func (p *prefixedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixedStore) Set(ctx context.Context, key string, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixedStore) Take(ctx context.Context, key string) (string, bool, error) {
	return p.store.Take(ctx, p.prefix+key)
}

func (p *prefixedStore) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}
