package format

import (
	"testing"
)

func TestHumanBytes(t *testing.T) {
	type testCase struct {
		input    int64
		expected string
	}

	tests := []testCase{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{16384, "16 KB"},
		{32768, "33 KB"},
		{1000000, "1 MB"},
		{4294967296, "4.3 GB"},
		{18150000000, "18 GB"},
		{1000000000000, "1 TB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			result := HumanBytes(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestGB(t *testing.T) {
	for input, expected := range map[float64]string{
		18.15:  "18.15 GB",
		0:      "0.00 GB",
		-3.219: "-3.22 GB",
		30.78:  "30.78 GB",
	} {
		if got := GB(input); got != expected {
			t.Errorf("GB(%v): expected %s, got %s", input, expected, got)
		}
	}
}
