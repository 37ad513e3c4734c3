package repo

import "errors"

// ErrOptimisticLock is returned when a settlement races a concurrent balance
// update and loses the version check.
var ErrOptimisticLock = errors.New("optimistic lock conflict")
