package pppoe

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-kit/kit/log"
)

// FindTag walks a raw PPPoE tag stream looking for the first tag whose
// type matches typ exactly.  The walk is bounds-checked against the
// declared length of the buffer: a tag header or declared tag length
// that would run past the end of buf terminates the walk and FindTag
// returns false, rather than reading out of bounds.
//
// Each tag type is decoded from its network-order wire bytes into host
// order and compared with typ, so callers pass host-order constants as
// usual.
func FindTag(buf []byte, typ PPPoETagType) (tag *PPPoETag, found bool) {
	cursor := 0
	end := len(buf)
	for cursor+pppoeTagMinLength <= end {
		tagType := PPPoETagType(binary.BigEndian.Uint16(buf[cursor : cursor+2]))
		tagLen := int(binary.BigEndian.Uint16(buf[cursor+2 : cursor+4]))
		if cursor+pppoeTagMinLength+tagLen > end {
			return nil, false
		}
		if tagType == typ {
			return &PPPoETag{
				Type: tagType,
				Data: buf[cursor+pppoeTagMinLength : cursor+pppoeTagMinLength+tagLen],
			}, true
		}
		cursor += pppoeTagMinLength + tagLen
	}
	return nil, false
}

// FindVendorTag walks a raw PPPoE tag stream looking for the first
// PPPoETagTypeVendorSpecific tag whose first four value bytes carry the
// requested vendor id in network order.  Bounds checking follows the
// same rules as FindTag.
func FindVendorTag(buf []byte, vendorID uint32) (tag *PPPoETag, found bool) {
	cursor := 0
	end := len(buf)
	for cursor+pppoeTagMinLength <= end {
		tagType := PPPoETagType(binary.BigEndian.Uint16(buf[cursor : cursor+2]))
		tagLen := int(binary.BigEndian.Uint16(buf[cursor+2 : cursor+4]))
		if cursor+pppoeTagMinLength+tagLen > end {
			return nil, false
		}
		if tagType == PPPoETagTypeVendorSpecific && tagLen >= 4 {
			value := buf[cursor+pppoeTagMinLength : cursor+pppoeTagMinLength+tagLen]
			if binary.BigEndian.Uint32(value[0:4]) == vendorID {
				return &PPPoETag{Type: tagType, Data: value}, true
			}
		}
		cursor += pppoeTagMinLength + tagLen
	}
	return nil, false
}

// EmitTag appends a single TLV to buf: a 2-byte type, a 2-byte length
// (both network byte order) and the value bytes verbatim.  No
// compaction or reordering of any existing content in buf is performed.
func EmitTag(buf *bytes.Buffer, typ PPPoETagType, value []byte) error {
	if len(value) > 0xffff {
		return fmt.Errorf("tag value of %d bytes exceeds maximum tag length", len(value))
	}
	if err := binary.Write(buf, binary.BigEndian, typ); err != nil {
		return fmt.Errorf("unable to write tag type: %v", err)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(value))); err != nil {
		return fmt.Errorf("unable to write tag length: %v", err)
	}
	_, _ = buf.Write(value)
	return nil
}

// PrintTags writes a human-readable dump of tags to logger for
// diagnostics.  It never mutates state.
//
// The Service-Name-Error, AC-System-Error and Generic-Error tags are
// permitted a zero-length value per RFC2516; we only render the text
// when the tag actually carries one.
func PrintTags(tags []*PPPoETag, logger log.Logger) {
	for _, tag := range tags {
		switch tag.Type {
		case PPPoETagTypeServiceNameError, PPPoETagTypeACSystemError, PPPoETagTypeGenericError:
			if len(tag.Data) > 0 {
				_ = logger.Log("tag", tag.Type, "value", string(tag.Data))
			} else {
				_ = logger.Log("tag", tag.Type)
			}
		case PPPoETagTypePPPMaxPayload:
			if len(tag.Data) == 2 {
				_ = logger.Log("tag", tag.Type, "value", binary.BigEndian.Uint16(tag.Data))
			} else {
				_ = logger.Log("tag", tag.Type, "malformed_length", len(tag.Data))
			}
		default:
			_ = logger.Log("tag", tag.Type, "value", fmt.Sprintf("%#v", tag.Data))
		}
	}
}

// DSLForumTags carries the Agent-Circuit-ID and Agent-Remote-ID values
// extracted from an RFC4937 DSL Forum vendor-specific tag.
type DSLForumTags struct {
	AgentCircuitID string
	AgentRemoteID  string
}

// ParseDSLForumVendorTag walks the sub-TLV stream following the 4-byte
// vendor id in a PPPoETagTypeVendorSpecific tag's value.  Each sub-TLV
// is (sub_type:u8, sub_len:u8, sub_value); a sub-TLV whose declared
// sub_len exceeds the remaining bytes stops the walk without error.
// Values are truncated to 63 bytes before being returned as strings
// (reflecting the source's NUL-terminated fixed buffer).
func ParseDSLForumVendorTag(vendorTagValue []byte) DSLForumTags {
	var out DSLForumTags
	if len(vendorTagValue) < 4 {
		return out
	}
	buf := vendorTagValue[4:]
	cursor := 0
	for cursor+2 <= len(buf) {
		subType := buf[cursor]
		subLen := int(buf[cursor+1])
		if cursor+2+subLen > len(buf) {
			break
		}
		value := buf[cursor+2 : cursor+2+subLen]
		if len(value) > dslForumSubValueMaxLength {
			value = value[:dslForumSubValueMaxLength]
		}
		switch subType {
		case dslForumSubTypeAgentCircuitID:
			out.AgentCircuitID = string(value)
		case dslForumSubTypeAgentRemoteID:
			out.AgentRemoteID = string(value)
		}
		cursor += 2 + subLen
	}
	return out
}

// EncodeDSLForumVendorTag renders an RFC4937 vendor-specific tag value
// (4-byte vendor id plus Agent-Circuit-ID/Agent-Remote-ID sub-TLVs) for
// the DSL Forum enterprise number.  Values longer than 63 bytes are
// truncated, mirroring ParseDSLForumVendorTag.
func EncodeDSLForumVendorTag(t DSLForumTags) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, VendorIDDSLForum)
	writeSub := func(subType uint8, value string) {
		if value == "" {
			return
		}
		if len(value) > dslForumSubValueMaxLength {
			value = value[:dslForumSubValueMaxLength]
		}
		buf.WriteByte(subType)
		buf.WriteByte(byte(len(value)))
		buf.WriteString(value)
	}
	writeSub(dslForumSubTypeAgentCircuitID, t.AgentCircuitID)
	writeSub(dslForumSubTypeAgentRemoteID, t.AgentRemoteID)
	return buf.Bytes()
}

// EncodePPPMaxPayload renders the RFC4638 PPP-Max-Payload tag value: a
// single 16-bit unsigned integer in network byte order.
func EncodePPPMaxPayload(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// DecodePPPMaxPayload parses the RFC4638 PPP-Max-Payload tag value.
func DecodePPPMaxPayload(value []byte) (v uint16, ok bool) {
	if len(value) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(value), true
}
