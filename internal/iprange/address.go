package iprange

import (
	"strconv"
	"strings"
)

// ParseIPv4 converts a dotted-quad string into its unsigned 32-bit value.
// Only four decimal components in 0..255 are accepted.
func ParseIPv4(raw string) (uint32, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return 0, false
	}

	var out uint32
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return 0, false
		}
		octet, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, false
		}
		out = out<<8 | uint32(octet)
	}
	return out, true
}

// FormatIPv4 renders a 32-bit address as a dotted quad.
func FormatIPv4(ip uint32) string {
	var b strings.Builder
	b.Grow(15)
	b.WriteString(strconv.FormatUint(uint64(ip>>24), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(ip>>16&0xff), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(ip>>8&0xff), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(ip&0xff), 10))
	return b.String()
}

// looseIPv4 converts like ParseIPv4 but maps anything unconvertible to 0,
// which is how range bounds and masks have always been read.
func looseIPv4(raw string) uint32 {
	ip, ok := ParseIPv4(raw)
	if !ok {
		return 0
	}
	return ip
}

// padCIDRBase fills a shorthand CIDR base such as "10.1" out to four
// components. Empty or non-numeric components become 0.
func padCIDRBase(raw string) string {
	parts := strings.Split(raw, ".")
	for len(parts) < 4 {
		parts = append(parts, "0")
	}
	parts = parts[:4]

	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			parts[i] = "0"
			continue
		}
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, ".")
}

// prefixMask returns the netmask for a prefix length. The wildcard part is
// computed in 64 bits so a length of 0 yields the all-zero mask.
func prefixMask(length int) uint32 {
	switch {
	case length <= 0:
		return 0
	case length >= 32:
		return 0xffffffff
	}
	wildcard := uint64(1)<<uint(32-length) - 1
	return uint32(^wildcard)
}

// maskIsContiguous reports whether mask is a run of leading ones followed by zeros.
func maskIsContiguous(mask uint32) bool {
	inverted := ^mask
	return inverted&(inverted+1) == 0
}
