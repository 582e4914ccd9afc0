package extract

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset is returned when a table create or row write is attempted
// with a dataset that has no rows or no columns.
var ErrEmptyDataset = errors.New("dataset is empty")

// ErrNoSuchFile is returned when a read-only connection is requested for a
// file that does not exist.
var ErrNoSuchFile = errors.New("extract file does not exist")

// WriteError reports a failed row write. The target table is left in its
// pre-call state: all inserts run inside one transaction.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing rows to table %q: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
