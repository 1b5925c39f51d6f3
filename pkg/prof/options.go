package prof

// Options selects which profiles a session writes. Empty paths are skipped.
type Options struct {
	CPU   string // sampled for the whole session
	Heap  string // snapshot at stop
	Mutex string // contention recorded during the session, written at stop
	Block string // blocking recorded during the session, written at stop
}

// Any reports whether at least one profile is requested.
func (o Options) Any() bool {
	return o.CPU != "" || o.Heap != "" || o.Mutex != "" || o.Block != ""
}
