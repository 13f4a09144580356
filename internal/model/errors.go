package model

import "errors"

var (
	// ErrNotFound indicates that a requested user, group, membership or report does not exist.
	ErrNotFound = errors.New("model: entity not found")
	// ErrCyclicRelationship indicates that a proposed nesting edge would make a group an ancestor of itself.
	ErrCyclicRelationship = errors.New("model: cyclic group relationship")
	// ErrInvalidAssociation indicates that an association operation failed a constraint check.
	ErrInvalidAssociation = errors.New("model: invalid association")
	// ErrIntegrityViolation indicates corrupted bookkeeping, such as two open history windows for one key.
	ErrIntegrityViolation = errors.New("model: integrity violation")
)
