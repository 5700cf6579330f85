package bridge

import "testing"

func TestCalculateLRC(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{name: "empty data", data: []byte{}, expected: 0x00},
		{name: "single byte", data: []byte{0x55}, expected: 0x55},
		{name: "two identical bytes", data: []byte{0xAA, 0xAA}, expected: 0x00},
		{
			name:     "header example",
			data:     []byte{0x55, 0x00, 0x00, 0x10, 0x00, 0x00, 0x10},
			expected: 0x55,
		},
		{name: "all ones", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, expected: 0x00},
		{name: "mixed data", data: []byte{0x12, 0x34, 0x56, 0x78}, expected: 0x12 ^ 0x34 ^ 0x56 ^ 0x78},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateLRC(tt.data); got != tt.expected {
				t.Errorf("calculateLRC() = 0x%02X, want 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestVerifyLRC(t *testing.T) {
	tests := []struct {
		name        string
		dataWithLRC []byte
		expected    bool
	}{
		{
			name:        "valid LRC",
			dataWithLRC: []byte{0x55, 0x00, 0x00, 0x10, 0x00, 0x00, 0x10, 0x55},
			expected:    true,
		},
		{
			name:        "invalid LRC",
			dataWithLRC: []byte{0x55, 0x00, 0x00, 0x10, 0x00, 0x00, 0x10, 0x00},
			expected:    false,
		},
		{name: "empty data", dataWithLRC: []byte{}, expected: false},
		{name: "single byte", dataWithLRC: []byte{0x00}, expected: false},
		{name: "two bytes valid", dataWithLRC: []byte{0xAA, 0xAA}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyLRC(tt.dataWithLRC); got != tt.expected {
				t.Errorf("verifyLRC() = %v, want %v", got, tt.expected)
			}
		})
	}
}
