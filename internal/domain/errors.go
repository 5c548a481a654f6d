package domain

import "errors"

// ErrNotFound is returned when the requested row or user does not exist
// in the ledger or the registry.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails business rule validation
// (e.g. end odometer below start odometer, bars out of range).
var ErrValidation = errors.New("validation error")

// ErrDuplicate is returned by the ledger when an append is suppressed
// because a row from the same author was committed within the duplicate
// window. It is a rejection, not a storage failure: the row was not written.
var ErrDuplicate = errors.New("duplicate entry")

// ErrStore is returned when communication with the backing row store fails.
// The caller decides whether to offer a retry; the ledger never retries on
// its own to avoid racing the duplicate check.
var ErrStore = errors.New("store error")
