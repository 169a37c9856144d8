// Package store provides the document store the lifecycle engine persists
// into: get/put/delete by id plus single-document compare-and-swap on a
// version counter. Two backends exist, an in-memory map for tests and a
// SQLite file for real deployments. No multi-document transactions are
// offered; optimistic concurrency is the caller's discipline.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used by the engine.
const (
	CollectionNeighborhoods = "neighborhoods"
	CollectionConversations = "conversations"
	CollectionNewsletters   = "newsletters"
)

var (
	// ErrNotFound is returned when no document exists under the id.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("document already exists")

	// ErrVersionMismatch is returned by CompareAndSwap when the stored
	// version no longer matches what the caller read.
	ErrVersionMismatch = errors.New("document version mismatch")
)

// Store is a document store keyed by (collection, id). Documents are
// serialized as JSON. Every document carries a store-side version counter:
// Create initialises it to 1, Put leaves it untouched, CompareAndSwap
// advances it by one when the expected version matches.
type Store interface {
	// Create inserts a new document with version 1. Fails with ErrExists
	// if the id is already present in the collection.
	Create(ctx context.Context, collection, id string, doc any) error

	// Get decodes the document into out. Fails with ErrNotFound.
	Get(ctx context.Context, collection, id string, out any) error

	// Put overwrites the document body without touching its version.
	// Fails with ErrNotFound when the document does not exist.
	Put(ctx context.Context, collection, id string, doc any) error

	// Delete removes the document. Fails with ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// List returns the raw bodies of every document in the collection, in
	// unspecified order. Callers decode and sort.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)

	// CompareAndSwap writes doc only if the stored version equals
	// expected, then sets the version to expected+1. Fails with
	// ErrVersionMismatch on a stale read and ErrNotFound when absent.
	CompareAndSwap(ctx context.Context, collection, id string, expected int64, doc any) error

	// Close releases backend resources.
	Close() error
}
