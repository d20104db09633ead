package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity         = errors.New("quantity cannot be negative")
	ErrInvalidReservedQuantity = errors.New("reserved quantity cannot be negative")
	ErrReservedExceedsTotal    = errors.New("reserved quantity cannot exceed total quantity")
	ErrEmptyItemID             = errors.New("item id is required")
	ErrNonPositiveAmount       = errors.New("amount must be positive")
	ErrInsufficientAvailable   = errors.New("insufficient available quantity")
	ErrExceedsReserved         = errors.New("amount exceeds reserved quantity")
)

var validationErrors = []error{
	ErrInvalidQuantity,
	ErrInvalidReservedQuantity,
	ErrReservedExceedsTotal,
	ErrEmptyItemID,
	ErrNonPositiveAmount,
	ErrInsufficientAvailable,
	ErrExceedsReserved,
}

// IsValidationError reports whether err was raised by the aggregate's own guards.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// InventoryAggregate is the quantity ledger for one item at one location.
// It holds 0 <= reservedQuantity <= quantity after construction and after every
// successful operation. It performs no locking; callers serialize access per item.
type InventoryAggregate struct {
	itemID           string
	quantity         int
	reservedQuantity int
	location         string
	version          int // optimistic locking, owned by repositories
}

func NewInventoryAggregate(itemID string, quantity, reservedQuantity int, location string) (*InventoryAggregate, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if reservedQuantity < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidReservedQuantity, reservedQuantity)
	}
	if reservedQuantity > quantity {
		return nil, fmt.Errorf("%w: reserved %d, quantity %d", ErrReservedExceedsTotal, reservedQuantity, quantity)
	}
	if itemID == "" {
		return nil, ErrEmptyItemID
	}

	return &InventoryAggregate{
		itemID:           itemID,
		quantity:         quantity,
		reservedQuantity: reservedQuantity,
		location:         location,
	}, nil
}

func (a *InventoryAggregate) ItemID() string        { return a.itemID }
func (a *InventoryAggregate) Quantity() int         { return a.quantity }
func (a *InventoryAggregate) ReservedQuantity() int { return a.reservedQuantity }
func (a *InventoryAggregate) Location() string      { return a.location }
func (a *InventoryAggregate) Version() int          { return a.version }

// SetVersion records the persisted version. Only repositories should call it.
func (a *InventoryAggregate) SetVersion(version int) {
	a.version = version
}

func (a *InventoryAggregate) AvailableQuantity() int {
	return a.quantity - a.reservedQuantity
}

func (a *InventoryAggregate) IsValid() bool {
	return a.quantity >= 0 &&
		a.reservedQuantity >= 0 &&
		a.reservedQuantity <= a.quantity
}

// Allocate reserves amount units of available stock.
func (a *InventoryAggregate) Allocate(amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveAmount, amount)
	}
	if amount > a.AvailableQuantity() {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientAvailable, amount, a.AvailableQuantity())
	}

	a.reservedQuantity += amount
	return nil
}

// Deallocate releases amount units of reserved stock back to available.
func (a *InventoryAggregate) Deallocate(amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveAmount, amount)
	}
	if amount > a.reservedQuantity {
		return fmt.Errorf("%w: requested %d, reserved %d", ErrExceedsReserved, amount, a.reservedQuantity)
	}

	a.reservedQuantity -= amount
	return nil
}

// Fulfill ships amount units of reserved stock, removing them from the total.
// Available quantity is unchanged.
func (a *InventoryAggregate) Fulfill(amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveAmount, amount)
	}
	if amount > a.reservedQuantity {
		return fmt.Errorf("%w: requested %d, reserved %d", ErrExceedsReserved, amount, a.reservedQuantity)
	}

	a.quantity -= amount
	a.reservedQuantity -= amount
	return nil
}

// InventorySnapshot is a read-only copy of an aggregate.
type InventorySnapshot struct {
	ItemID            string `json:"item_id"`
	Quantity          int    `json:"quantity"`
	ReservedQuantity  int    `json:"reserved_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	Location          string `json:"location,omitempty"`
	Version           int    `json:"version"`
}

func (a *InventoryAggregate) Snapshot() InventorySnapshot {
	return InventorySnapshot{
		ItemID:            a.itemID,
		Quantity:          a.quantity,
		ReservedQuantity:  a.reservedQuantity,
		AvailableQuantity: a.AvailableQuantity(),
		Location:          a.location,
		Version:           a.version,
	}
}

// Restore rebuilds an aggregate from a snapshot, re-running construction guards.
func (s InventorySnapshot) Restore() (*InventoryAggregate, error) {
	agg, err := NewInventoryAggregate(s.ItemID, s.Quantity, s.ReservedQuantity, s.Location)
	if err != nil {
		return nil, err
	}
	agg.version = s.Version
	return agg, nil
}
