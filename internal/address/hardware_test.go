package address

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseHardwareAddress_Valid(t *testing.T) {
	want := HardwareAddress{0x26, 0xce, 0x55, 0xa5, 0xc2, 0x33}

	tests := []struct {
		name  string
		input string
	}{
		{name: "colon lower", input: "26:ce:55:a5:c2:33"},
		{name: "colon upper", input: "26:CE:55:A5:C2:33"},
		{name: "hyphen", input: "26-ce-55-a5-c2-33"},
		{name: "mixed case hyphen", input: "26-Ce-55-a5-C2-33"},
		{name: "surrounding whitespace", input: "  26:ce:55:a5:c2:33\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHardwareAddress(tt.input)
			if err != nil {
				t.Fatalf("ParseHardwareAddress(%q) error = %v", tt.input, err)
			}
			if got != want {
				t.Errorf("ParseHardwareAddress(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseHardwareAddress_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "five groups", input: "26:ce:55:a5:c2"},
		{name: "seven groups", input: "26:ce:55:a5:c2:33:44"},
		{name: "mixed separators", input: "26:ce-55:a5:c2:33"},
		{name: "dot separator", input: "26.ce.55.a5.c2.33"},
		{name: "no separators", input: "26ce55a5c233"},
		{name: "non hex", input: "26:ce:55:a5:c2:zz"},
		{name: "single digit groups", input: "2:ce:55:a5:c2:333"},
		{name: "cisco dotted", input: "26ce.55a5.c233"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHardwareAddress(tt.input)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseHardwareAddress(%q) error = %v, want ErrInvalidFormat", tt.input, err)
			}
		})
	}
}

func TestHardwareAddress_StringIsCanonical(t *testing.T) {
	addr := MustParseHardwareAddress("AA-BB-CC-0D-0E-0F")
	if got := addr.String(); got != "aa:bb:cc:0d:0e:0f" {
		t.Errorf("String() = %q, want %q", got, "aa:bb:cc:0d:0e:0f")
	}
}

func TestHardwareAddress_CanonicalisationIsFixedPoint(t *testing.T) {
	inputs := []string{
		"00:00:00:00:00:00",
		"FF-FF-FF-FF-FF-FF",
		"26:CE:55:a5:C2:33",
		"de-ad-be-ef-00-01",
	}

	for _, in := range inputs {
		first, err := ParseHardwareAddress(in)
		if err != nil {
			t.Fatalf("ParseHardwareAddress(%q) error = %v", in, err)
		}
		once := first.String()

		second, err := ParseHardwareAddress(once)
		if err != nil {
			t.Fatalf("ParseHardwareAddress(%q) error = %v", once, err)
		}
		if second != first {
			t.Errorf("round trip of %q changed address: %v != %v", in, second, first)
		}
		if second.String() != once {
			t.Errorf("format not idempotent for %q: %q != %q", in, second.String(), once)
		}
	}
}

func TestHardwareAddress_JSON(t *testing.T) {
	type wrapper struct {
		MAC HardwareAddress `json:"mac"`
	}

	data, err := json.Marshal(wrapper{MAC: MustParseHardwareAddress("26:ce:55:a5:c2:33")})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"mac":"26:ce:55:a5:c2:33"}` {
		t.Errorf("Marshal = %s", data)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"mac":"bogus"}`), &w); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Unmarshal bogus error = %v, want ErrInvalidFormat", err)
	}
}

func TestHardwareAddress_BytesIsCopy(t *testing.T) {
	addr := MustParseHardwareAddress("01:02:03:04:05:06")
	b := addr.Bytes()
	b[0] = 0xff
	if addr[0] != 0x01 {
		t.Error("Bytes() must not alias the address")
	}
	if addr.IsZero() {
		t.Error("IsZero() = true for non-zero address")
	}
}
