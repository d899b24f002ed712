// Package draft persists the editable part of a submission so it survives reloads.
package draft

import (
	"context"

	"github.com/moyoez/submitsession/types"
)

// Key is the single fixed key every store writes the draft under.
const Key = "submission-draft"

// Store is a key/value draft store holding at most one draft.
type Store interface {
	// Load returns the draft and true, or false when nothing is stored.
	Load(ctx context.Context) (types.Draft, bool, error)
	Save(ctx context.Context, d types.Draft) error
	// Delete removes the draft; deleting a missing draft is not an error.
	Delete(ctx context.Context) error
}
