package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed UUIDv7. Ids with the same prefix sort in generation
// order, which the stores use as the last tie-break inside a history.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}
