package keys

// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.
// Every key of a namespace shares the {namespace} hash tag so that the
// Lua scripts touching several keys stay on one cluster slot.

func Scheduled(ns string) string { return "jobq:{" + ns + "}:scheduled" }
func Ready(ns string) string     { return "jobq:{" + ns + "}:ready" }
func Active(ns string) string    { return "jobq:{" + ns + "}:active" }

// State returns the per-state index ZSET. Members are job ids scored by
// created_at (ms) so listings can be returned newest first.
func State(ns, state string) string { return "jobq:{" + ns + "}:state:" + state }

// Job returns the HASH key holding a single job record.
func Job(ns, id string) string { return JobPrefix(ns) + id }

// JobPrefix is the common prefix of job HASH keys; scripts append the id.
func JobPrefix(ns string) string { return "jobq:{" + ns + "}:job:" }

// Namespace holds all precomputed keys for a namespace to avoid repeated concatenations.
type Namespace struct {
	Name       string
	Scheduled  string
	Ready      string
	Active     string
	JobPrefix  string
	Pending    string
	Processing string
	Completed  string
	Dead       string
}

// For returns a set of precomputed keys for the provided namespace.
func For(ns string) Namespace {
	prefix := "jobq:{" + ns + "}:"
	return Namespace{
		Name:       ns,
		Scheduled:  prefix + "scheduled",
		Ready:      prefix + "ready",
		Active:     prefix + "active",
		JobPrefix:  prefix + "job:",
		Pending:    prefix + "state:pending",
		Processing: prefix + "state:processing",
		Completed:  prefix + "state:completed",
		Dead:       prefix + "state:dead",
	}
}

// Job returns the HASH key of a job in this namespace.
func (n Namespace) Job(id string) string { return n.JobPrefix + id }

// Index returns the state index key for a stored state name.
func (n Namespace) Index(state string) string { return "jobq:{" + n.Name + "}:state:" + state }
