package catalog

import (
	"errors"

	"cadenza/internal/store"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by lookups whose target does not exist when an
// empty result cannot express the miss (e.g. single-row updates).
var ErrNotFound = errors.New("catalog: not found")

// Catalog maintains referential consistency between tracks, albums, artists,
// genres and their junction relations. All mutation goes through the store's
// write scope; the tx-level functions in this package compose inside larger
// transactions such as an ingestion batch commit.
type Catalog struct {
	store  *store.Store
	logger *logrus.Logger
}

// New creates a catalog over the given store.
func New(st *store.Store, logger *logrus.Logger) *Catalog {
	return &Catalog{store: st, logger: logger}
}

// Store exposes the underlying store for components that need to compose
// catalog operations inside their own scopes.
func (c *Catalog) Store() *store.Store {
	return c.store
}
