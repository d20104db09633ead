package port

import "errors"

var (
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrAlreadyExists  = errors.New("inventory already exists")
)
