package enrollment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSnapshots is returned when a pipeline input term has no snapshots.
var ErrNoSnapshots = errors.New("no snapshots in collection")

// SchemaError reports a snapshot whose header lacks columns the pipeline needs.
type SchemaError struct {
	Date    Date
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("snapshot %s: missing required columns: %s", e.Date, strings.Join(e.Missing, ", "))
}

// MissingReferenceSnapshotError reports that the snapshot designated as the
// capacity reference is not part of the collection.
type MissingReferenceSnapshotError struct {
	Date      Date
	Available []Date
}

func (e *MissingReferenceSnapshotError) Error() string {
	avail := make([]string, len(e.Available))
	for i, d := range e.Available {
		avail[i] = d.String()
	}
	return fmt.Sprintf("reference snapshot %s not found (available: %s)", e.Date, strings.Join(avail, ", "))
}
