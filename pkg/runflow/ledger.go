package runflow

// GraphStore holds graph specifications. Implementations must be safe for
// concurrent use and must return copies the caller may modify.
type GraphStore interface {
	// SaveGraph stores spec under a new ID and returns it.
	SaveGraph(spec *GraphSpec) (string, error)

	// LookupGraph returns the spec stored under id, or an error matching
	// ErrGraphNotFound.
	LookupGraph(id string) (*GraphSpec, error)

	// ListGraphs returns every stored graph ID.
	ListGraphs() ([]string, error)
}

// Ledger records run state and the append-only run log.
//
// Update, AppendLog and Finish on an unknown run ID do nothing and return
// nil. A non-nil error always means the store itself failed.
type Ledger interface {
	// Create stores a pending run with a copy of initial and returns its ID.
	Create(graphID string, initial State) (string, error)

	// Get returns a deep copy of the run, or an error matching ErrRunNotFound.
	Get(runID string) (*Run, error)

	// Update applies a partial update.
	Update(runID string, u RunUpdate) error

	// AppendLog appends an entry holding a private copy of snapshot.
	AppendLog(runID, node, message string, snapshot State) error

	// Finish stores final as the current state and marks the run finished
	// unless it already reached a terminal status.
	Finish(runID string, final State) error

	// List returns copies of every run, oldest first.
	List() ([]*Run, error)
}
