package mdomain

// Attribute is a single typed key/value pair an application has inserted
// into the local data store of some node, and that a covering DSN may
// aggregate for entity search (spec.md §4.9).
//
// Volatile marks attributes whose value changes often enough that a DSN
// should prefer re-inquiring over subscribing (the subscription
// optimization described in spec.md §4.9 and SPEC_FULL.md §C).
type Attribute struct {
	Key      string
	Value    string
	Volatile bool
}

// Entry is the local per-node attribute set, keyed by attribute key.
type Entry map[string]Attribute

// Clone returns a shallow copy safe to hand to a caller outside the
// owning node's event loop.
func (e Entry) Clone() Entry {
	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
