// Package store implements the shared key-document contract rooms are synchronized through:
// overwrite-capable create, one-shot reads, dotted-path partial writes and change subscriptions.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// Document is a JSON-shaped record. Nested objects are map[string]any.
type Document = map[string]any

// Fields maps dotted paths ("players.<uid>.score") to the values written there.
type Fields = map[string]any

// Unsubscribe tears a subscription down. It is safe to call more than once.
type Unsubscribe func()

type DocumentStore interface {
	Create(ctx context.Context, collection, id string, doc Document) error
	ReadOnce(ctx context.Context, collection, id string) (Document, error)
	// WritePartial applies every field independently. A map value replaces the whole
	// subtree at its path. Returns ErrNotFound when the document does not exist.
	WritePartial(ctx context.Context, collection, id string, fields Fields) error
	// Subscribe delivers the current document, then later versions. Deliveries may be
	// coalesced but the latest version is always delivered eventually. onError is called at
	// most once, after which the subscription is dead. ctx bounds only the subscribe call;
	// the subscription lives until Unsubscribe or an error.
	Subscribe(ctx context.Context, collection, id string, onChange func(Document), onError func(error)) (Unsubscribe, error)
}

func key(collection, id string) string {
	return collection + ":" + id
}
