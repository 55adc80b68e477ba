package iprange

import (
	"fmt"
	"strconv"
	"strings"
)

const wildcardMarker = "*"

type Kind int

const (
	KindCIDR Kind = iota
	KindNetmask
	KindWildcard
	KindBounded
)

func (k Kind) String() string {
	switch k {
	case KindCIDR:
		return "cidr"
	case KindNetmask:
		return "netmask"
	case KindWildcard:
		return "wildcard"
	case KindBounded:
		return "bounded"
	default:
		return "unknown"
	}
}

// Descriptor is a parsed range. CIDR and netmask forms are compared through
// Base and Mask, wildcard and bounded forms through the inclusive
// Lower..Upper interval.
type Descriptor struct {
	Raw  string
	Kind Kind

	Base uint32
	Mask uint32

	Lower uint32
	Upper uint32
}

// Parse reads a range descriptor the permissive way: unconvertible bounds and
// masks read as 0 and non-contiguous masks are applied bit for bit.
func Parse(raw string) (Descriptor, error) {
	return parse(raw, false)
}

// ParseStrict accepts the same grammar as Parse but rejects malformed
// octets, prefix lengths outside 0..32, non-contiguous masks and inverted
// bounds.
func ParseStrict(raw string) (Descriptor, error) {
	return parse(raw, true)
}

func parse(raw string, strict bool) (Descriptor, error) {
	text := strings.TrimSpace(raw)

	if base, mask, ok := strings.Cut(text, "/"); ok {
		if strings.Contains(mask, ".") {
			return parseNetmask(raw, base, mask, strict)
		}
		return parseCIDR(raw, base, mask, strict)
	}

	kind := KindBounded
	if strings.Contains(text, wildcardMarker) {
		kind = KindWildcard
		text = strings.ReplaceAll(text, wildcardMarker, "0") + "-" + strings.ReplaceAll(text, wildcardMarker, "255")
	}

	if lower, upper, ok := strings.Cut(text, "-"); ok {
		return parseBounded(raw, kind, lower, upper, strict)
	}

	return Descriptor{Raw: raw}, fmt.Errorf("%w: %q", ErrUnrecognizedRangeFormat, raw)
}

func parseNetmask(raw, base, mask string, strict bool) (Descriptor, error) {
	mask = strings.ReplaceAll(mask, wildcardMarker, "0")

	d := Descriptor{
		Raw:  raw,
		Kind: KindNetmask,
		Base: looseIPv4(base),
		Mask: looseIPv4(mask),
	}
	if !strict {
		return d, nil
	}

	if _, ok := ParseIPv4(base); !ok {
		return d, fmt.Errorf("%w: base %q in %q", ErrInvalidAddress, base, raw)
	}
	m, ok := ParseIPv4(mask)
	if !ok || !maskIsContiguous(m) {
		return d, fmt.Errorf("%w: %q in %q", ErrInvalidMask, mask, raw)
	}
	return d, nil
}

func parseCIDR(raw, base, length string, strict bool) (Descriptor, error) {
	d := Descriptor{
		Raw:  raw,
		Kind: KindCIDR,
		Base: looseIPv4(padCIDRBase(base)),
	}

	bits, err := strconv.Atoi(strings.TrimSpace(length))
	if err != nil {
		return d, fmt.Errorf("%w: prefix length %q in %q", ErrInvalidMask, length, raw)
	}
	d.Mask = prefixMask(bits)

	if !strict {
		return d, nil
	}

	if bits < 0 || bits > 32 {
		return d, fmt.Errorf("%w: prefix length %d in %q", ErrInvalidMask, bits, raw)
	}
	for _, part := range strings.Split(base, ".") {
		if _, err := strconv.ParseUint(part, 10, 8); err != nil {
			return d, fmt.Errorf("%w: base %q in %q", ErrInvalidAddress, base, raw)
		}
	}
	if strings.Count(base, ".") > 3 {
		return d, fmt.Errorf("%w: base %q in %q", ErrInvalidAddress, base, raw)
	}
	return d, nil
}

func parseBounded(raw string, kind Kind, lower, upper string, strict bool) (Descriptor, error) {
	d := Descriptor{
		Raw:   raw,
		Kind:  kind,
		Lower: looseIPv4(lower),
		Upper: looseIPv4(upper),
	}
	if !strict {
		return d, nil
	}

	if _, ok := ParseIPv4(lower); !ok {
		return d, fmt.Errorf("%w: lower bound %q in %q", ErrInvalidAddress, lower, raw)
	}
	if _, ok := ParseIPv4(upper); !ok {
		return d, fmt.Errorf("%w: upper bound %q in %q", ErrInvalidAddress, upper, raw)
	}
	if d.Lower > d.Upper {
		return d, fmt.Errorf("%w: %q", ErrInvertedRange, raw)
	}
	return d, nil
}

// Contains reports whether ip falls inside the descriptor.
func (d Descriptor) Contains(ip uint32) bool {
	switch d.Kind {
	case KindCIDR, KindNetmask:
		return ip&d.Mask == d.Base&d.Mask
	default:
		return d.Lower <= ip && ip <= d.Upper
	}
}

// Bounds returns the inclusive interval covered by the descriptor. For masks
// that are not contiguous the interval is the envelope of the matching set.
func (d Descriptor) Bounds() (uint32, uint32) {
	switch d.Kind {
	case KindCIDR, KindNetmask:
		lo := d.Base & d.Mask
		return lo, lo | ^d.Mask
	default:
		return d.Lower, d.Upper
	}
}

func (d Descriptor) String() string {
	lo, hi := d.Bounds()
	return fmt.Sprintf("%s %s (%s-%s)", d.Kind, d.Raw, FormatIPv4(lo), FormatIPv4(hi))
}
