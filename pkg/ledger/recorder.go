package ledger

import "context"

// Recorder persists and queries session records.
type Recorder interface {
	// Put stores a record. Storing an existing ID replaces it.
	Put(ctx context.Context, record *Record) error

	// Get retrieves a record by ID. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)

	// Stats counts records by outcome.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases any resources.
	Close() error
}

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the number of records. Zero means no cap.
	Limit int

	// Outcome keeps only records with this outcome when non-empty.
	Outcome string
}

// ErrNotFound is returned when a record doesn't exist.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "record not found"
	}

	return "record not found: " + e.ID
}
