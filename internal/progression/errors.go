// Package progression defines the shared domain vocabulary for the
// progression and reward engine: activity types and the error taxonomy
// returned by its services.
package progression

import "errors"

// Service errors. Handlers translate these to HTTP status codes; callers
// inside the engine test them with errors.Is.
var (
	// ErrNotFound indicates a mission, drill or slot that does not exist
	// or does not belong to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates an unknown mission/drill type or an
	// out-of-range slot index.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyClaimed indicates a claim against a mission whose reward
	// was already paid out.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrIncomplete indicates a mission claim before the target was reached.
	ErrIncomplete = errors.New("mission incomplete")

	// ErrNotFinished indicates a drill claim before the drill matured.
	ErrNotFinished = errors.New("drill not finished")

	// ErrSlotOccupied indicates a drill start against a slot holding a
	// matured, unclaimed drill. The pending reward must be claimed first.
	ErrSlotOccupied = errors.New("slot holds an unclaimed reward")

	// ErrConflict indicates a conditional update lost a race after the
	// bounded retries were exhausted.
	ErrConflict = errors.New("concurrent update conflict")
)
