package iprange

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

var (
	// ErrUnrecognizedRangeFormat is returned for descriptors that are neither
	// CIDR, netmask, wildcard nor bounded ranges.
	ErrUnrecognizedRangeFormat = errors.New("iprange: range is not in 1.2.3.4/24, 1.2.3.4/255.255.255.0, 1.2.3.* or 1.2.3.0-1.2.3.255 format")
	// ErrInvalidRangeSequence is returned when no descriptors were supplied.
	ErrInvalidRangeSequence = errors.New("iprange: range list is empty")
	ErrInvalidAddress       = errors.New("iprange: invalid IPv4 address")
	ErrInvalidMask          = errors.New("iprange: invalid netmask")
	ErrInvertedRange        = errors.New("iprange: lower bound is above upper bound")
)

// Contains reports whether ip lies inside descriptor. The descriptor is
// parsed on every call. Any error comes with a false result.
func Contains(ip, descriptor string) (bool, error) {
	addr, ok := ParseIPv4(ip)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	d, err := Parse(descriptor)
	if err != nil {
		return false, err
	}
	return d.Contains(addr), nil
}

// InRange is Contains without the error. Unrecognized descriptors are
// reported on the logger.
func InRange(ip, descriptor string) bool {
	ok, err := Contains(ip, descriptor)
	if err != nil {
		log.Warn("IP range check failed", "ip", ip, "range", descriptor, "error", err)
		return false
	}
	return ok
}

// ContainsAny checks descriptors in order and stops at the first match.
// Errors from individual descriptors are collected and only returned when
// nothing matched.
func ContainsAny(ip string, descriptors []string) (bool, error) {
	if len(descriptors) == 0 {
		return false, ErrInvalidRangeSequence
	}

	addr, ok := ParseIPv4(ip)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	var errs []error
	for _, raw := range descriptors {
		d, err := Parse(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d.Contains(addr) {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

// InAnyRange is ContainsAny without the error.
func InAnyRange(ip string, descriptors []string) bool {
	ok, err := ContainsAny(ip, descriptors)
	if err != nil && !errors.Is(err, ErrInvalidRangeSequence) {
		log.Warn("IP range list check reported problems", "ip", ip, "error", err)
	}
	return ok
}
