package phys

// UpperLayer is the collaborator the phys layer reports to and
// delegates template instantiation to.  It is the Go expression of the
// "upstream phys-layer contract" in the design: the core never
// maintains its own notion of the higher PPP link/bundle negotiation
// layer, it only calls out to one.
type UpperLayer interface {
	// RequestUpperHook asks the upper layer which graph path and hook
	// name the link's per-session hook should be connected to.
	RequestUpperHook(link *Link) (path, hook string, err error)

	// NotifyUp tells the upper layer the link has reached state UP.
	NotifyUp(link *Link)

	// NotifyDown tells the upper layer the link has left state UP (or
	// failed to reach it), with a human-readable cause.
	NotifyDown(link *Link, cause string)

	// NotifyIncoming tells the upper layer a new instance was cloned
	// from a template to answer an incoming discovery request.
	NotifyIncoming(link *Link)

	// Instantiate clones template into a fresh, independent Link ready
	// to answer one incoming call.  The core never deep-copies a
	// template itself; it always asks the collaborator.
	Instantiate(template *Link) (*Link, error)
}

// Stats is a snapshot of per-link counters.  Only ConnectAttempts and
// Failures are updated by this package; PacketsUp, PacketsDown,
// BytesUp and BytesDown are never incremented and read as zero.
type Stats struct {
	PacketsUp      uint64
	PacketsDown    uint64
	BytesUp        uint64
	BytesDown      uint64
	ConnectAttempts uint64
	Failures       uint64
}
