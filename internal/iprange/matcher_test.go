package iprange

import (
	"errors"
	"fmt"
	"testing"
)

func TestInRangeExamples(t *testing.T) {
	cases := []struct {
		ip    string
		rng   string
		match bool
	}{
		{"192.168.1.10", "192.168.1.0/24", true},
		{"192.168.2.10", "192.168.1.0/24", false},
		{"10.0.0.5", "10.0.0.*", true},
		{"10.0.1.5", "10.0.0.*", false},
		{"172.16.5.5", "172.16.5.0-172.16.5.255", true},
		{"10.200.1.1", "10/8", true},
		{"11.0.0.1", "10/8", false},
		{"192.168.1.77", "192.168.1/24", true},
		{"192.168.1.77", "192.168.1.0/255.255.255.0", true},
		{"192.168.1.77", "192.168.1.0/255.255.255.*", true},
		{"192.168.2.77", "192.168.1.0/255.255.255.0", false},
		{"255.255.255.255", "0.0.0.0/0", true},
		{"220.1.1.1", "200.0.0.0-250.0.0.0", true},
		{"100.0.0.0", "200.0.0.0-250.0.0.0", false},
		{"10.1.2.3", "10.*.*.*", true},
		{"10.1.2.3", " 10.1.2.0/24 ", true},
	}

	for _, tc := range cases {
		if got := InRange(tc.ip, tc.rng); got != tc.match {
			t.Errorf("InRange(%q, %q) = %v, want %v", tc.ip, tc.rng, got, tc.match)
		}
	}
}

func TestCIDRMatchesTopBits(t *testing.T) {
	base := uint32(0xC0A80A80) // 192.168.10.128
	candidates := []uint32{
		base,
		base ^ 1,
		base ^ 0x80,
		base ^ 0x8000,
		base ^ 0x80000000,
		0,
		0xffffffff,
	}

	for length := 0; length <= 32; length++ {
		rng := fmt.Sprintf("%s/%d", FormatIPv4(base), length)
		for _, candidate := range candidates {
			want := length == 0 || candidate>>(32-length) == base>>(32-length)
			got, err := Contains(FormatIPv4(candidate), rng)
			if err != nil {
				t.Fatalf("Contains(%s, %s) returned error: %v", FormatIPv4(candidate), rng, err)
			}
			if got != want {
				t.Errorf("Contains(%s, %s) = %v, want %v", FormatIPv4(candidate), rng, got, want)
			}
		}
	}
}

func TestCIDRBoundaryLengths(t *testing.T) {
	if !InRange("1.2.3.4", "9.9.9.9/0") {
		t.Fatal("prefix length 0 should match every address")
	}
	if !InRange("9.9.9.9", "9.9.9.9/32") {
		t.Fatal("prefix length 32 should match its base")
	}
	if InRange("9.9.9.8", "9.9.9.9/32") {
		t.Fatal("prefix length 32 should only match its base")
	}
}

func TestNetmaskEquivalentToPrefix(t *testing.T) {
	base := "172.20.64.0"
	ips := []string{"172.20.64.1", "172.20.65.200", "172.20.127.255", "172.20.128.0", "172.21.64.1", "8.8.8.8"}

	for length := 0; length <= 32; length++ {
		mask := FormatIPv4(uint32(0xffffffff << (32 - length)))
		for _, ip := range ips {
			prefixed := InRange(ip, fmt.Sprintf("%s/%d", base, length))
			masked := InRange(ip, base+"/"+mask)
			if prefixed != masked {
				t.Errorf("ip %s: /%d gave %v, /%s gave %v", ip, length, prefixed, mask, masked)
			}
		}
	}
}

func TestWildcardEquivalentToBounded(t *testing.T) {
	ips := []string{"10.20.0.0", "10.20.255.255", "10.20.7.9", "10.21.0.0", "10.19.255.255", "200.1.1.1"}
	for _, ip := range ips {
		wild := InRange(ip, "10.20.*.*")
		bounded := InRange(ip, "10.20.0.0-10.20.255.255")
		if wild != bounded {
			t.Errorf("ip %s: wildcard gave %v, bounded gave %v", ip, wild, bounded)
		}
	}
}

func TestBoundedRangeIsInclusive(t *testing.T) {
	rng := "128.0.0.10-200.0.0.20"
	cases := map[string]bool{
		"128.0.0.10": true,
		"200.0.0.20": true,
		"128.0.0.9":  false,
		"200.0.0.21": false,
		"150.0.0.0":  true,
	}
	for ip, want := range cases {
		if got := InRange(ip, rng); got != want {
			t.Errorf("InRange(%q, %q) = %v, want %v", ip, rng, got, want)
		}
	}

	if InRange("150.0.0.0", "200.0.0.0-100.0.0.0") {
		t.Fatal("inverted range should never match")
	}
}

func TestNonContiguousMaskIsApplied(t *testing.T) {
	rng := "10.0.0.1/255.0.0.255"
	if !InRange("10.9.9.1", rng) {
		t.Fatal("non-contiguous mask should be applied bit for bit")
	}
	if InRange("10.9.9.2", rng) {
		t.Fatal("non-contiguous mask matched a differing last octet")
	}

	if _, err := ParseStrict(rng); !errors.Is(err, ErrInvalidMask) {
		t.Fatalf("ParseStrict(%q) error = %v, want ErrInvalidMask", rng, err)
	}
}

func TestContainsErrors(t *testing.T) {
	t.Run("unrecognized format", func(t *testing.T) {
		ok, err := Contains("192.168.1.1", "192.168.1.1")
		if ok || !errors.Is(err, ErrUnrecognizedRangeFormat) {
			t.Fatalf("Contains = %v, %v; want false, ErrUnrecognizedRangeFormat", ok, err)
		}
		if InRange("192.168.1.1", "192.168.1.1") {
			t.Fatal("InRange should fail closed on unrecognized format")
		}
	})

	t.Run("invalid candidate", func(t *testing.T) {
		ok, err := Contains("not-an-ip", "0.0.0.0/0")
		if ok || !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("Contains = %v, %v; want false, ErrInvalidAddress", ok, err)
		}
	})

	t.Run("non-numeric prefix", func(t *testing.T) {
		ok, err := Contains("10.0.0.1", "10.0.0.0/abc")
		if ok || !errors.Is(err, ErrInvalidMask) {
			t.Fatalf("Contains = %v, %v; want false, ErrInvalidMask", ok, err)
		}
	})

	t.Run("oversized prefix", func(t *testing.T) {
		if !InRange("10.0.0.1", "10.0.0.1/40") || InRange("10.0.0.2", "10.0.0.1/40") {
			t.Fatal("prefix length above 32 should behave as /32")
		}
		if _, err := ParseStrict("10.0.0.1/40"); !errors.Is(err, ErrInvalidMask) {
			t.Fatalf("ParseStrict error = %v, want ErrInvalidMask", err)
		}
	})
}

func TestContainsAny(t *testing.T) {
	ranges := []string{"10.0.0.0/8", "172.16.0.0-172.31.255.255", "192.168.*.*"}

	cases := []struct {
		name  string
		ip    string
		match bool
	}{
		{"first", "10.4.4.4", true},
		{"middle", "172.20.0.1", true},
		{"last", "192.168.50.1", true},
		{"none", "8.8.4.4", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ContainsAny(tc.ip, ranges)
			if err != nil {
				t.Fatalf("ContainsAny returned error: %v", err)
			}
			if got != tc.match {
				t.Fatalf("ContainsAny(%q) = %v, want %v", tc.ip, got, tc.match)
			}
		})
	}

	if !InAnyRange("8.8.8.8", []string{"10.0.0.0/8", "8.8.8.0/24"}) {
		t.Fatal("InAnyRange should match 8.8.8.8 in 8.8.8.0/24")
	}
}

func TestContainsAnyEmptySequence(t *testing.T) {
	for _, ranges := range [][]string{nil, {}} {
		ok, err := ContainsAny("8.8.8.8", ranges)
		if ok || !errors.Is(err, ErrInvalidRangeSequence) {
			t.Fatalf("ContainsAny(%v) = %v, %v; want false, ErrInvalidRangeSequence", ranges, ok, err)
		}
		if InAnyRange("8.8.8.8", ranges) {
			t.Fatalf("InAnyRange(%v) should be false", ranges)
		}
	}
}

func TestContainsAnySkipsBadDescriptors(t *testing.T) {
	ok, err := ContainsAny("8.8.8.8", []string{"garbage", "8.8.8.8/32"})
	if !ok || err != nil {
		t.Fatalf("ContainsAny = %v, %v; want true, nil", ok, err)
	}

	ok, err = ContainsAny("8.8.8.8", []string{"garbage", "1.1.1.1/32"})
	if ok || !errors.Is(err, ErrUnrecognizedRangeFormat) {
		t.Fatalf("ContainsAny = %v, %v; want false, ErrUnrecognizedRangeFormat", ok, err)
	}
}
