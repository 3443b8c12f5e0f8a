package transaction

import "errors"

// Transaction domain errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)
