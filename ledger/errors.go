package ledger

import "errors"

// Domain errors returned by ledger operations. The ABCI layer maps these to
// result codes and the chain client maps the codes back to the same errors,
// so a facade can rely on errors.Is across the process boundary.
var (
	ErrEmptyField      = errors.New("herb name and quantity must not be empty")
	ErrNotFound        = errors.New("collection does not exist")
	ErrAlreadyVerified = errors.New("collection already verified")
	ErrNotOwner        = errors.New("caller is not the ledger owner")
	ErrZeroOwner       = errors.New("new owner must not be the zero address")
)
