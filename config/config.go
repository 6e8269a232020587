/*
Package config implements a parser for mpppoed configuration represented
in the TOML format: https://github.com/toml-lang/toml.

Link instances are called out in the configuration file using named TOML
tables.  Each link table contains configuration parameters for that link
as key:value pairs.

	# This is a link instance named "uplink"
	[link.uplink]

	# iface specifies the parent Ethernet interface the link dials out on
	# or listens on.
	iface = "eth0"

	# hook, if set, overrides the hook name the PPPoE node attaches to on
	# the parent interface.  Defaults to "orphans".
	hook = "orphans"

	# service specifies the service name to request (outgoing) or match
	# (incoming).  "*" matches any service.
	service = "myisp"

	# ac_name is advertised in PPPOE_OFFER replies when incoming is true.
	ac_name = "mpd-ng"

	# max_payload requests the RFC4638 PPP-Max-Payload extension; the
	# value must be in the range [1492, 1510]. Omit to leave it unset.
	max_payload = 1492

	# mac_format selects how the peer's Ethernet address is rendered in
	# calling/called-number outputs.
	# Currently supported values are "unformatted", "unix-like",
	# "cisco-like" and "ietf".
	mac_format = "unix-like"

	# incoming, if true, makes the link eligible to answer discovery
	# requests (server role) in addition to or instead of dialing out.
	incoming = false

Parameters outside any [link.*] table are passed to the caller's
CustomConfigParser, letting a daemon define its own top-level settings
(e.g. a listening address, a log level) alongside the link tables this
package understands natively.
*/
package config

import (
	"fmt"

	"github.com/AxeyGabriel/mpd-ng/phys"
	"github.com/pelletier/go-toml"
)

// Config contains parsed configuration for every link instance, plus
// the raw tree for callers that need to inspect keys this package
// doesn't itself model.
type Config struct {
	// The entire tree as a map as parsed from the TOML representation.
	Map map[string]interface{}
	// All the links defined in the configuration.
	Links []NamedLink
}

// NamedLink contains phys-layer configuration for a link instance.
type NamedLink struct {
	// The link's name as specified in the config file.
	Name string
	// The link's phys-layer configuration.
	Config *phys.Config
}

// CustomConfigParser lets a caller of LoadFileWithCustomParser handle
// configuration parameters outside any [link.*] table in its own way.
type CustomConfigParser interface {
	ParseParameter(key string, value interface{}) error
}

type noopParser struct{}

func (noopParser) ParseParameter(key string, value interface{}) error {
	return fmt.Errorf("unrecognised parameter %q", key)
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

// go-toml's ToMap function represents numbers as either uint64 or int64,
// so conversion has to range-check whichever one it picked.
func toUint16(v interface{}) (uint16, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

func toMACFormat(v interface{}) (phys.MACFormat, error) {
	s, err := toString(v)
	if err != nil {
		return 0, err
	}
	return phys.ParseMACFormat(s)
}

func newLinkConfig(name string, lcfg map[string]interface{}) (*NamedLink, error) {
	c := phys.NewConfig()
	for k, v := range lcfg {
		var err error
		switch k {
		case "iface":
			c.Iface, err = toString(v)
		case "hook":
			c.AttachHook, err = toString(v)
		case "service":
			c.Service, err = toString(v)
		case "ac_name":
			c.ACName, err = toString(v)
		case "max_payload":
			c.MaxPayload, err = toUint16(v)
		case "mac_format":
			c.MACFormat, err = toMACFormat(v)
		case "incoming":
			c.Incoming, err = toBool(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter %q", k)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &NamedLink{Name: name, Config: c}, nil
}

func (cfg *Config) loadLinks() error {
	got, ok := cfg.Map["link"]
	if !ok {
		return nil
	}
	links, ok := got.(map[string]interface{})
	if !ok {
		return fmt.Errorf("link instances must be named, e.g. '[link.mylink]'")
	}
	for name, got := range links {
		lmap, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("link instances must be named, e.g. '[link.mylink]'")
		}
		nl, err := newLinkConfig(name, lmap)
		if err != nil {
			return fmt.Errorf("link %v: %v", name, err)
		}
		cfg.Links = append(cfg.Links, *nl)
	}
	return nil
}

func (cfg *Config) loadCustomParameters(parser CustomConfigParser) error {
	for k, v := range cfg.Map {
		if k == "link" {
			continue
		}
		if err := parser.ParseParameter(k, v); err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nil
}

func newConfig(tree *toml.Tree, parser CustomConfigParser) (*Config, error) {
	cfg := &Config{Map: tree.ToMap()}
	if err := cfg.loadLinks(); err != nil {
		return nil, fmt.Errorf("failed to parse links: %v", err)
	}
	if err := cfg.loadCustomParameters(parser); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFileWithCustomParser loads configuration from the specified file,
// routing any parameter outside a [link.*] table through parser.
func LoadFileWithCustomParser(path string, parser CustomConfigParser) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	return newConfig(tree, parser)
}

// LoadStringWithCustomParser is LoadFileWithCustomParser for an
// in-memory TOML document.
func LoadStringWithCustomParser(content string, parser CustomConfigParser) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load config string: %v", err)
	}
	return newConfig(tree, parser)
}

// LoadFile loads configuration from the specified file.  Any parameter
// outside a [link.*] table is rejected.
func LoadFile(path string) (*Config, error) {
	return LoadFileWithCustomParser(path, noopParser{})
}

// LoadString loads configuration from the specified string.  Any
// parameter outside a [link.*] table is rejected.
func LoadString(content string) (*Config, error) {
	return LoadStringWithCustomParser(content, noopParser{})
}
