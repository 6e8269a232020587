package phys

import (
	"fmt"
	"strings"
)

const (
	// defaultAttachHook is used when a link's configuration does not
	// override the hook to attach on.
	defaultAttachHook = "orphans"
	// defaultService is the wildcard service-name match.
	defaultService = "*"
	// maxGraphPathLength bounds the derived graph path to the
	// kernel's netgraph node-path buffer size (NG_PATHSIZ-1, leaving
	// room for the NUL terminator); interface names that would
	// overflow it are truncated.  See DESIGN.md for the rationale.
	maxGraphPathLength = 31

	// pppoeMRU is the PPPoE MRU floor: the minimum PPP-Max-Payload a
	// link may request, per RFC4638.
	pppoeMRU = 1492
	// etherMaxLenLessHeader bounds the maximum PPP-Max-Payload a link
	// may request (ETHER_MAX_LEN - 8).
	etherMaxLenLessHeader = 1510
)

// Config is the mutable per-link configuration surface: the set of
// parameters a command interpreter (or a config-file loader) can set
// on a link.
type Config struct {
	// Iface is the parent Ethernet interface name.
	Iface string
	// AttachHook is the hook name to attach the PPPoE peer on, e.g.
	// "orphans" or "divert".
	AttachHook string
	// Service is the service-name selector; "*" matches any service
	// on incoming requests.
	Service string
	// ACName is advertised in server OFFER replies.
	ACName string
	// MaxPayload is the PPP-Max-Payload request value; 0 means unset.
	MaxPayload uint16
	// MACFormat selects peer-MAC rendering for calling/called-number
	// outputs.
	MACFormat MACFormat
	// Incoming enables the link to answer discovery requests (server
	// role); when false the link may only be used to dial out.
	Incoming bool
}

// NewConfig returns a Config populated with the documented defaults.
func NewConfig() *Config {
	return &Config{
		AttachHook: defaultAttachHook,
		Service:    defaultService,
		MACFormat:  MACFormatUnixLike,
	}
}

// Validate checks the configuration against the documented
// constraints, returning a *Error with ErrKindConfiguration describing
// the first violation found.
func (c *Config) Validate() error {
	if c.Iface == "" {
		return newError(ErrKindConfiguration, "iface", fmt.Errorf("parent interface must be set"))
	}
	if c.Service == "" {
		return newError(ErrKindConfiguration, "service", fmt.Errorf("service name must be non-empty; use \"*\" for wildcard"))
	}
	if c.MaxPayload != 0 && (c.MaxPayload < pppoeMRU || c.MaxPayload > etherMaxLenLessHeader) {
		return newError(ErrKindConfiguration, "max-payload",
			fmt.Errorf("max-payload %d outside range [%d, %d]", c.MaxPayload, pppoeMRU, etherMaxLenLessHeader))
	}
	return nil
}

// DerivePath computes the netgraph graph path for the configured
// parent interface: the interface name with every '.' and ':'
// replaced by '_', followed by a trailing ':'.  The result is
// truncated to maxGraphPathLength bytes if the interface name alone
// would overflow the kernel's node-path buffer.
func (c *Config) DerivePath() string {
	name := c.Iface
	if len(name) > maxGraphPathLength-1 {
		name = name[:maxGraphPathLength-1]
	}
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '.', ':':
			return '_'
		}
		return r
	}, name)
	return replaced + ":"
}

// SetMACFormat parses and applies the "mac-format" command.
func (c *Config) SetMACFormat(s string) error {
	f, err := ParseMACFormat(s)
	if err != nil {
		return err
	}
	c.MACFormat = f
	return nil
}
