package undo

import "testing"

func TestOrigin(t *testing.T) {
	tests := []struct {
		name      string
		origin    Origin
		wantDepth int
		wantKnown bool
		wantAt    bool
		wantStr   string
	}{
		{"zero value", Origin{}, 0, true, true, "0"},
		{"undo side", OriginAt(3), 3, true, false, "3"},
		{"redo side", OriginAt(-2), -2, true, false, "-2"},
		{"shifted to zero", OriginAt(-1).Add(1), 0, true, true, "0"},
		{"unknown", UnknownOrigin(), 0, false, false, "unknown"},
		{"unknown stays unknown", UnknownOrigin().Add(-5), 0, false, false, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, known := tt.origin.Depth()
			if depth != tt.wantDepth || known != tt.wantKnown {
				t.Errorf("Depth() = %d, %t; want %d, %t", depth, known, tt.wantDepth, tt.wantKnown)
			}
			if got := tt.origin.AtOrigin(); got != tt.wantAt {
				t.Errorf("AtOrigin() = %t, want %t", got, tt.wantAt)
			}
			if got := tt.origin.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}
