package action

import "errors"

// ErrExpired reports a decision attempted on an action whose approval
// window has elapsed.
var ErrExpired = errors.New("action expired")

// ErrInvalidRollbackToken reports a rollback token that resolves to no
// execution record.
var ErrInvalidRollbackToken = errors.New("invalid rollback token")

// ErrRollbackUnavailable reports a rollback attempt on an action whose
// rollback has been consumed or was never available.
var ErrRollbackUnavailable = errors.New("rollback not available")

// ErrRollbackWindowExpired reports a rollback attempted after the
// rollback window elapsed; the attempt also disables the action.
var ErrRollbackWindowExpired = errors.New("rollback window expired")
