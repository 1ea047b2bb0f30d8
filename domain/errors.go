package domain

import "errors"

// ErrNotFound indicates the task or project does not exist or is not
// owned by the caller's tenant.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates the caller's role does not permit the
// operation.
var ErrForbidden = errors.New("forbidden")
