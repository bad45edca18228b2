package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// Reference is the weak back-reference from a ledger row to the business
// object that caused it.
type Reference struct {
	Type string
	ID   uuid.UUID
}

// Valid reports whether both halves are set.
func (r Reference) Valid() bool {
	return r.Type != "" && r.ID != uuid.Nil
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}
