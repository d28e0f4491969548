// Package store defines the uniform get/head/put capability cachegate's
// fetcher consumes, and a registry that dispatches a user-chosen bucket id
// to a concrete S3 or Azure adapter.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cachegate/cachegate/internal/config"
)

// Sentinel errors returned by adapters. Handlers branch on these, not on
// provider-specific error types, so the registry's polymorphism seam stays
// at this package boundary.
var (
	ErrNotFound      = errors.New("store: object not found")
	ErrUpstream      = errors.New("store: upstream error")
	ErrUnknownBucket = errors.New("store: unknown bucket")
)

// Object is what a successful Get returns: the body and an optional
// provider-supplied content type. The fetcher derives a fallback content
// type when ContentType is empty.
type Object struct {
	Bytes       []byte
	ContentType string
}

// Meta is what a successful Head returns.
type Meta struct {
	Size        int64
	ContentType string
}

// Store is the capability every adapter implements. Every operation may be
// long-running and must honor ctx's deadline.
type Store interface {
	Get(ctx context.Context, path string) (Object, error)
	Head(ctx context.Context, path string) (Meta, error)
	Put(ctx context.Context, path string, body []byte, contentType string) error
}

// Locator is the narrow capability the fetcher needs from a registry:
// resolving a bucket_id to its adapter. *Registry satisfies this; tests can
// supply their own without constructing real S3/Azure clients.
type Locator interface {
	Lookup(bucketID string) (Store, error)
}

// Registry maps a user-defined bucket_id to its concrete adapter. It is
// built once at startup and never mutated afterward.
type Registry struct {
	stores map[string]Store
}

// NewRegistry constructs adapters for every configured store descriptor.
func NewRegistry(ctx context.Context, descriptors map[string]config.Store) (*Registry, error) {
	stores := make(map[string]Store, len(descriptors))
	for id, desc := range descriptors {
		s, err := newAdapter(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("store: build adapter %q: %w", id, err)
		}
		stores[id] = s
	}
	return &Registry{stores: stores}, nil
}

func newAdapter(ctx context.Context, desc config.Store) (Store, error) {
	switch desc.Variant {
	case config.VariantS3:
		return newS3Store(ctx, desc)
	case config.VariantAzure:
		return newAzureStore(desc)
	default:
		return nil, fmt.Errorf("store: unknown variant %q", desc.Variant)
	}
}

// Lookup returns the adapter for bucketID, or ErrUnknownBucket if no such
// bucket was registered at startup.
func (r *Registry) Lookup(bucketID string) (Store, error) {
	s, ok := r.stores[bucketID]
	if !ok {
		return nil, ErrUnknownBucket
	}
	return s, nil
}
