package id

import "testing"

func TestMinimalUnits(t *testing.T) {
	tests := []struct {
		name      string
		baseUnits string
		decimal   string
		want      uint64
		wantErr   bool
	}{
		{name: "base units", baseUnits: "2500000000", want: 2_500_000_000},
		{name: "decimal whole", decimal: "3", want: 3_000_000_000},
		{name: "decimal fraction", decimal: "1.25", want: 1_250_000_000},
		{name: "decimal smallest", decimal: "0.000000001", want: 1},
		{name: "both forms", baseUnits: "1", decimal: "1", wantErr: true},
		{name: "neither form", wantErr: true},
		{name: "zero base units", baseUnits: "0", wantErr: true},
		{name: "zero decimal", decimal: "0.0", wantErr: true},
		{name: "negative", baseUnits: "-5", wantErr: true},
		{name: "not a number", decimal: "1,5", wantErr: true},
		{name: "too precise", decimal: "0.0000000001", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MinimalUnits(tc.baseUnits, tc.decimal)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got %d, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFormatNative(t *testing.T) {
	tests := []struct {
		units uint64
		want  string
	}{
		{1_000_000_000, "1"},
		{2_500_000_000, "2.5"},
		{1, "0.000000001"},
		{1_234_567_891, "1.234567891"},
		{0, "0"},
	}
	for _, tc := range tests {
		if got := FormatNative(tc.units); got != tc.want {
			t.Errorf("FormatNative(%d) = %q, want %q", tc.units, got, tc.want)
		}
	}
}
