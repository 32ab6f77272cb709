package pixbuf

import "testing"

func TestExpectedSize(t *testing.T) {
	tests := []struct {
		name       string
		w, h       uint32
		sixteenBit bool
		want       uint64
	}{
		{"8bit", 10, 10, false, 400},
		{"16bit", 10, 10, true, 800},
		{"empty", 0, 10, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.w, tt.h, tt.sixteenBit, false)
			if got := b.ExpectedSize(); got != tt.want {
				t.Errorf("ExpectedSize() = %d, want %d", got, tt.want)
			}
			if uint64(len(b.Data)) != tt.want {
				t.Errorf("len(Data) = %d, want %d", len(b.Data), tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	b := New(4, 4, false, true)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() on fresh buffer: %v", err)
	}

	b.Data = b.Data[:len(b.Data)-1]
	if err := b.Validate(); err == nil {
		t.Error("Validate() should reject a short buffer")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := Filled(2, 2, false, false, 0xff)
	c := a.Clone()
	c.Data[0] = 0

	if a.Data[0] != 0xff {
		t.Error("mutating the clone changed the original")
	}
	if Equal(a, c) {
		t.Error("Equal() should report the mutated clone as different")
	}
}

func TestIsNull(t *testing.T) {
	if !(Buffer{}).IsNull() {
		t.Error("zero Buffer should be null")
	}
	if Filled(1, 1, false, false, 1).IsNull() {
		t.Error("1x1 buffer should not be null")
	}
}
