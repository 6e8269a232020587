package phys

import "fmt"

// MACFormat selects how a peer's Ethernet address is rendered in
// calling/called-number outputs.
type MACFormat int

const (
	MACFormatUnformatted MACFormat = iota
	MACFormatUnixLike
	MACFormatCiscoLike
	MACFormatIETF
)

// ParseMACFormat maps a configuration string to a MACFormat.
func ParseMACFormat(s string) (MACFormat, error) {
	switch s {
	case "unformatted":
		return MACFormatUnformatted, nil
	case "unix-like":
		return MACFormatUnixLike, nil
	case "cisco-like":
		return MACFormatCiscoLike, nil
	case "ietf":
		return MACFormatIETF, nil
	}
	return 0, newError(ErrKindConfiguration, "mac-format", fmt.Errorf("unrecognised mac-format %q", s))
}

// FormatMAC renders addr according to format.
func FormatMAC(addr [6]byte, format MACFormat) string {
	switch format {
	case MACFormatUnixLike:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	case MACFormatCiscoLike:
		return fmt.Sprintf("%02x%02x.%02x%02x.%02x%02x",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	case MACFormatIETF:
		return fmt.Sprintf("%02x-%02x-%02x-%02x-%02x-%02x",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	default:
		return fmt.Sprintf("%02x%02x%02x%02x%02x%02x",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	}
}
