package queue

import "errors"

var (
	// ErrStorageUnavailable indicates the durable backend could not be
	// reached. Callers may fall back to the in-memory store.
	ErrStorageUnavailable = errors.New("queue storage unavailable")

	// ErrCorruptSnapshot indicates a backup file that could not be fully
	// decoded. Recovery is all-or-nothing; a corrupt snapshot restores
	// nothing.
	ErrCorruptSnapshot = errors.New("corrupt backup snapshot")
)
