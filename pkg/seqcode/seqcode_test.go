package seqcode

import "testing"

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		last   string
		want   string
	}{
		{"first code", Appointment, "", "BN0001"},
		{"increments", Invoice, "HD0041", "HD0042"},
		{"grows past width", LabOrder, "XN9999", "XN10000"},
		{"unparsable restarts", Prescription, "DTabc", "DT0001"},
		{"foreign prefix restarts", Encounter, "BN0007", "KB0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.prefix, tt.last, DefaultWidth); got != tt.want {
				t.Errorf("Next(%q, %q) = %q, want %q", tt.prefix, tt.last, got, tt.want)
			}
		})
	}
}
