package domain

import "time"

type MovementKind string

const (
	MovementAllocate   MovementKind = "allocate"
	MovementDeallocate MovementKind = "deallocate"
	MovementFulfill    MovementKind = "fulfill"
)

// Movement is a journal entry for one successful aggregate operation.
type Movement struct {
	ID            string       `json:"id"`
	RequestID     string       `json:"request_id,omitempty"`
	ItemID        string       `json:"item_id"`
	Kind          MovementKind `json:"kind"`
	Amount        int          `json:"amount"`
	QuantityAfter int          `json:"quantity_after"`
	ReservedAfter int          `json:"reserved_after"`
	CreatedAt     time.Time    `json:"created_at"`
}
