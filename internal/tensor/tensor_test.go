package tensor

import (
	"testing"
)

func TestNewDimensions(t *testing.T) {
	tt := New(2, 3, 4, 5)

	if tt.NumSamples() != 2 || tt.K() != 3 || tt.Nr() != 4 || tt.Nc() != 5 {
		t.Errorf("dimensions = (%d, %d, %d, %d), want (2, 3, 4, 5)",
			tt.NumSamples(), tt.K(), tt.Nr(), tt.Nc())
	}
	if tt.Size() != 120 {
		t.Errorf("Size() = %d, want 120", tt.Size())
	}
	if tt.SampleSize() != 60 {
		t.Errorf("SampleSize() = %d, want 60", tt.SampleSize())
	}
	if len(tt.Data()) != 120 {
		t.Errorf("len(Data()) = %d, want 120", len(tt.Data()))
	}
}

func TestNewZeroInitialized(t *testing.T) {
	tt := New(1, 2, 2, 2)
	for i, v := range tt.Data() {
		if v != 0 {
			t.Errorf("Data()[%d] = %f, want 0", i, v)
		}
	}
}

func TestFromValues(t *testing.T) {
	tt := FromValues(1, 1, 2, 2, 1, 2, 3, 4)

	if tt.At(0, 0, 1, 0) != 3 {
		t.Errorf("At(0,0,1,0) = %f, want 3", tt.At(0, 0, 1, 0))
	}

	tt.Set(0, 0, 1, 1, 9)
	if tt.Data()[3] != 9 {
		t.Errorf("Data()[3] = %f, want 9", tt.Data()[3])
	}
}

func TestResizeReallocates(t *testing.T) {
	tt := New(1, 1, 2, 2)
	tt.Set(0, 0, 0, 0, 7)

	tt.Resize(1, 2, 2, 2)
	if tt.Size() != 8 {
		t.Errorf("Size() after grow = %d, want 8", tt.Size())
	}
	if len(tt.Data()) != 8 {
		t.Errorf("len(Data()) after grow = %d, want 8", len(tt.Data()))
	}
}

func TestResizeSameTotalKeepsData(t *testing.T) {
	tt := FromValues(1, 1, 2, 2, 1, 2, 3, 4)

	tt.Resize(1, 4, 1, 1)
	if tt.K() != 4 || tt.Nr() != 1 || tt.Nc() != 1 {
		t.Errorf("dimensions after reshape = %v", tt)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if tt.Data()[i] != want {
			t.Errorf("Data()[%d] = %f, want %f", i, tt.Data()[i], want)
		}
	}
}

func TestResizeNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Resize with a negative dimension should panic")
		}
	}()
	New(1, 1, 1, 1).Resize(1, -1, 1, 1)
}

func TestZeroSizeTensor(t *testing.T) {
	tt := New(0, 3, 4, 5)
	if tt.Size() != 0 {
		t.Errorf("Size() = %d, want 0", tt.Size())
	}
	if len(tt.Data()) != 0 {
		t.Errorf("len(Data()) = %d, want 0", len(tt.Data()))
	}
}

func TestSameObject(t *testing.T) {
	a := New(1, 1, 1, 1)
	b := New(1, 1, 1, 1)

	if !SameObject(a, a) {
		t.Error("SameObject(a, a) should be true")
	}
	if SameObject(a, b) {
		t.Error("SameObject(a, b) should be false for distinct tensors")
	}
	if SameObject(nil, nil) {
		t.Error("SameObject(nil, nil) should be false")
	}
}

func TestHaveSameDimensions(t *testing.T) {
	a := New(2, 3, 4, 5)
	b := New(2, 3, 4, 5)
	c := New(2, 3, 5, 4)

	if !HaveSameDimensions(a, b) {
		t.Error("identical shapes should match")
	}
	if HaveSameDimensions(a, c) {
		t.Error("transposed spatial dims should not match")
	}
}

func TestBroadcastable(t *testing.T) {
	dest := New(2, 3, 4, 5)

	cases := []struct {
		name string
		src  *Tensor
		want bool
	}{
		{"identical", New(2, 3, 4, 5), true},
		{"per-channel bias", New(1, 3, 1, 1), true},
		{"per-sample", New(2, 1, 1, 1), true},
		{"scalar", New(1, 1, 1, 1), true},
		{"wrong channels", New(1, 2, 1, 1), false},
		{"wrong rows", New(2, 3, 2, 5), false},
	}
	for _, tc := range cases {
		if got := Broadcastable(tc.src, dest); got != tc.want {
			t.Errorf("%s: Broadcastable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
