package webgpu

import (
	"testing"

	"github.com/grava-ml/grava/internal/tensor"
)

// Helper to acquire a Context, skipping when no adapter is present.
func newTestContext(t *testing.T) *Context {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	ctx, err := New()
	if err != nil {
		t.Fatalf("failed to create context: %v", err)
	}
	t.Cleanup(ctx.Release)
	return ctx
}

// Helper to compare float32 slices with tolerance.
func compareSlices(t *testing.T, expected, actual []float32, tolerance float32) bool {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("length mismatch: expected %d, got %d", len(expected), len(actual))
		return false
	}
	for i := range expected {
		diff := expected[i] - actual[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Errorf("value mismatch at index %d: expected %f, got %f (diff: %f)", i, expected[i], actual[i], diff)
			return false
		}
	}
	return true
}

func TestFill(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 1, 2, 2, 1, 2, 3, 4)
	if err := Fill(ctx, tt, 7); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	compareSlices(t, []float32{7, 7, 7, 7}, tt.Data(), 0)
}

func TestScale(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 1, 2, 2, 1, 2, 3, 4)
	if err := Scale(ctx, tt, 0.5); err != nil {
		t.Fatalf("Scale failed: %v", err)
	}

	compareSlices(t, []float32{0.5, 1, 1.5, 2}, tt.Data(), 1e-6)
}

func TestAddSameShape(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 4, 1, 2, 3, 4)
	src := tensor.FromValues(1, 1, 1, 4, 5, 6, 7, 8)

	if err := Add(ctx, 1, dest, 1, src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	compareSlices(t, []float32{6, 8, 10, 12}, dest.Data(), 1e-6)
}

func TestAddBroadcastChannel(t *testing.T) {
	ctx := newTestContext(t)

	// A per-channel bias broadcast over the spatial axes.
	dest := tensor.FromValues(1, 2, 1, 2, 1, 2, 3, 4)
	src := tensor.FromValues(1, 2, 1, 1, 10, 20)

	if err := Add(ctx, 1, dest, 1, src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	compareSlices(t, []float32{11, 12, 23, 24}, dest.Data(), 1e-6)
}

func TestAddScalarBroadcastCoefficients(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 2, 2, 2, 4, 6, 8)
	src := tensor.FromValues(1, 1, 1, 1, 5)

	// dest = 0.5*dest + 2*src
	if err := Add(ctx, 0.5, dest, 2, src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	compareSlices(t, []float32{11, 12, 13, 14}, dest.Data(), 1e-6)
}

func TestAddBroadcastEachAxis(t *testing.T) {
	ctx := newTestContext(t)

	cases := []struct {
		name string
		src  *tensor.Tensor
		dest *tensor.Tensor
		want []float32
	}{
		{"samples", tensor.FromValues(1, 1, 1, 2, 10, 20),
			tensor.New(2, 1, 1, 2), []float32{10, 20, 10, 20}},
		{"rows", tensor.FromValues(1, 1, 1, 2, 10, 20),
			tensor.New(1, 1, 2, 2), []float32{10, 20, 10, 20}},
		{"columns", tensor.FromValues(1, 1, 2, 1, 10, 20),
			tensor.New(1, 1, 2, 2), []float32{10, 10, 20, 20}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Add(ctx, 0, tc.dest, 1, tc.src); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			compareSlices(t, tc.want, tc.dest.Data(), 1e-6)
		})
	}
}

func TestAddBetaZeroOverwrites(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 2, 100, 200)
	src := tensor.FromValues(1, 1, 1, 2, 3, 4)

	if err := Add(ctx, 0, dest, 1, src); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	compareSlices(t, []float32{3, 4}, dest.Data(), 1e-6)
}

func TestAddAliasPanics(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.New(1, 1, 1, 2)
	defer func() {
		if recover() == nil {
			t.Error("Add with aliased src and dest should panic")
		}
	}()
	_ = Add(ctx, 1, tt, 1, tt)
}

func TestSigmoid(t *testing.T) {
	ctx := newTestContext(t)

	src := tensor.FromValues(1, 1, 1, 3, -2, 0, 2)
	dest := tensor.New(1, 1, 1, 3)

	if err := Sigmoid(ctx, dest, src); err != nil {
		t.Fatalf("Sigmoid failed: %v", err)
	}

	compareSlices(t, []float32{0.119203, 0.5, 0.880797}, dest.Data(), 1e-5)
}

func TestSigmoidInPlace(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 1, 1, 1, 0)
	if err := Sigmoid(ctx, tt, tt); err != nil {
		t.Fatalf("Sigmoid failed: %v", err)
	}

	compareSlices(t, []float32{0.5}, tt.Data(), 1e-6)
}

func TestSigmoidGradientAccumulates(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 1, 0.5) // sigmoid(0)
	gi := tensor.FromValues(1, 1, 1, 1, 2)
	grad := tensor.FromValues(1, 1, 1, 1, 1)

	// grad += gi * dest * (1 - dest) = 1 + 2*0.25
	if err := SigmoidGradient(ctx, grad, dest, gi); err != nil {
		t.Fatalf("SigmoidGradient failed: %v", err)
	}

	compareSlices(t, []float32{1.5}, grad.Data(), 1e-6)
}

func TestReLU(t *testing.T) {
	ctx := newTestContext(t)

	src := tensor.FromValues(1, 1, 1, 4, -3, -0.5, 0, 2)
	dest := tensor.New(1, 1, 1, 4)

	if err := ReLU(ctx, dest, src); err != nil {
		t.Fatalf("ReLU failed: %v", err)
	}

	compareSlices(t, []float32{0, 0, 0, 2}, dest.Data(), 0)
}

func TestReLUInPlace(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 1, 1, 4, -3, -0.5, 0, 2)
	if err := ReLU(ctx, tt, tt); err != nil {
		t.Fatalf("ReLU failed: %v", err)
	}

	compareSlices(t, []float32{0, 0, 0, 2}, tt.Data(), 0)
}

func TestReLUGradientAccumulates(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 2, 0, 2)
	gi := tensor.FromValues(1, 1, 1, 2, 3, 4)
	grad := tensor.FromValues(1, 1, 1, 2, 1, 1)

	// Gradient passes only where the forward output was positive.
	if err := ReLUGradient(ctx, grad, dest, gi); err != nil {
		t.Fatalf("ReLUGradient failed: %v", err)
	}

	compareSlices(t, []float32{1, 5}, grad.Data(), 1e-6)
}

func TestTanh(t *testing.T) {
	ctx := newTestContext(t)

	src := tensor.FromValues(1, 1, 1, 3, -1, 0, 1)
	dest := tensor.New(1, 1, 1, 3)

	if err := Tanh(ctx, dest, src); err != nil {
		t.Fatalf("Tanh failed: %v", err)
	}

	compareSlices(t, []float32{-0.761594, 0, 0.761594}, dest.Data(), 1e-5)
}

func TestTanhInPlace(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 1, 1, 1, 1)
	if err := Tanh(ctx, tt, tt); err != nil {
		t.Fatalf("Tanh failed: %v", err)
	}

	compareSlices(t, []float32{0.761594}, tt.Data(), 1e-5)
}

func TestTanhGradientAccumulates(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 1, 0.462117) // tanh(0.5)
	gi := tensor.FromValues(1, 1, 1, 1, 1)
	grad := tensor.New(1, 1, 1, 1)

	// grad += gi * (1 - dest*dest)
	if err := TanhGradient(ctx, grad, dest, gi); err != nil {
		t.Fatalf("TanhGradient failed: %v", err)
	}

	compareSlices(t, []float32{0.786448}, grad.Data(), 1e-5)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	ctx := newTestContext(t)

	const h = 1e-3
	inputs := []float32{-1.5, -0.3, 0.2, 0.8}

	activations := []struct {
		name     string
		forward  func(dest, src *tensor.Tensor) error
		gradient func(grad, dest, gi *tensor.Tensor) error
	}{
		{"sigmoid",
			func(d, s *tensor.Tensor) error { return Sigmoid(ctx, d, s) },
			func(g, d, gi *tensor.Tensor) error { return SigmoidGradient(ctx, g, d, gi) }},
		{"tanh",
			func(d, s *tensor.Tensor) error { return Tanh(ctx, d, s) },
			func(g, d, gi *tensor.Tensor) error { return TanhGradient(ctx, g, d, gi) }},
	}
	for _, a := range activations {
		t.Run(a.name, func(t *testing.T) {
			src := tensor.FromValues(1, 1, 1, 4, inputs...)
			dest := tensor.New(1, 1, 1, 4)
			if err := a.forward(dest, src); err != nil {
				t.Fatalf("forward failed: %v", err)
			}

			gi := tensor.FromValues(1, 1, 1, 4, 1, 1, 1, 1)
			grad := tensor.New(1, 1, 1, 4)
			if err := a.gradient(grad, dest, gi); err != nil {
				t.Fatalf("gradient failed: %v", err)
			}

			// Central differences of the forward function.
			plus := tensor.New(1, 1, 1, 4)
			minus := tensor.New(1, 1, 1, 4)
			shifted := tensor.New(1, 1, 1, 4)
			for i, v := range inputs {
				shifted.Data()[i] = v + h
			}
			if err := a.forward(plus, shifted); err != nil {
				t.Fatalf("forward failed: %v", err)
			}
			for i, v := range inputs {
				shifted.Data()[i] = v - h
			}
			if err := a.forward(minus, shifted); err != nil {
				t.Fatalf("forward failed: %v", err)
			}

			numeric := make([]float32, 4)
			for i := range numeric {
				numeric[i] = (plus.Data()[i] - minus.Data()[i]) / (2 * h)
			}
			compareSlices(t, numeric, grad.Data(), 1e-3)
		})
	}
}

func TestGradientRunsTwiceDoubles(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 1, 1, 1, 0.5)
	gi := tensor.FromValues(1, 1, 1, 1, 2)
	grad := tensor.New(1, 1, 1, 1)

	for i := 0; i < 2; i++ {
		if err := SigmoidGradient(ctx, grad, dest, gi); err != nil {
			t.Fatalf("SigmoidGradient failed: %v", err)
		}
	}

	compareSlices(t, []float32{1}, grad.Data(), 1e-6)
}

func TestGradientSharedWithGradientInput(t *testing.T) {
	ctx := newTestContext(t)

	// Passing the same tensor as grad and gi is allowed and must match the
	// result of accumulating a separate gi with the same values.
	cases := []struct {
		name string
		fn   func(ctx *Context, grad, dest, gi *tensor.Tensor) error
	}{
		{"sigmoid", SigmoidGradient},
		{"relu", ReLUGradient},
		{"tanh", TanhGradient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dest := tensor.FromValues(1, 1, 1, 2, 0.25, 0.75)
			grad := tensor.FromValues(1, 1, 1, 2, 2, 3)
			gi := tensor.FromValues(1, 1, 1, 2, 2, 3)
			if err := tc.fn(ctx, grad, dest, gi); err != nil {
				t.Fatalf("%s gradient failed: %v", tc.name, err)
			}

			shared := tensor.FromValues(1, 1, 1, 2, 2, 3)
			if err := tc.fn(ctx, shared, dest, shared); err != nil {
				t.Fatalf("%s gradient failed: %v", tc.name, err)
			}
			compareSlices(t, grad.Data(), shared.Data(), 1e-6)
		})
	}
}

func TestGradientDestAliasPanics(t *testing.T) {
	ctx := newTestContext(t)

	cases := []struct {
		name string
		fn   func(ctx *Context, grad, dest, gi *tensor.Tensor) error
	}{
		{"sigmoid", SigmoidGradient},
		{"relu", ReLUGradient},
		{"tanh", TanhGradient},
		{"softmax", SoftmaxGradient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tt := tensor.New(1, 1, 1, 2)
			gi := tensor.New(1, 1, 1, 2)
			defer func() {
				if recover() == nil {
					t.Errorf("%s gradient with grad aliasing dest should panic", tc.name)
				}
			}()
			_ = tc.fn(ctx, tt, tt, gi)
		})
	}
}

func TestSoftmax(t *testing.T) {
	ctx := newTestContext(t)

	src := tensor.FromValues(1, 3, 1, 1, 1, 2, 3)
	dest := tensor.New(1, 3, 1, 1)

	if err := Softmax(ctx, dest, src); err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}

	compareSlices(t, []float32{0.090031, 0.244728, 0.665241}, dest.Data(), 1e-5)

	var sum float32
	for _, v := range dest.Data() {
		sum += v
	}
	if sum < 0.9999 || sum > 1.0001 {
		t.Errorf("softmax output sums to %f, want 1", sum)
	}
}

func TestSoftmaxPerLocation(t *testing.T) {
	ctx := newTestContext(t)

	// Two spatial locations normalized independently over two channels.
	// Layout: (n0,k0,r0,c0), (n0,k0,r0,c1), (n0,k1,r0,c0), (n0,k1,r0,c1).
	src := tensor.FromValues(1, 2, 1, 2, 0, 1, 0, -1)
	dest := tensor.New(1, 2, 1, 2)

	if err := Softmax(ctx, dest, src); err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}

	compareSlices(t, []float32{0.5, 0.880797, 0.5, 0.119203}, dest.Data(), 1e-5)
}

func TestSoftmaxInPlace(t *testing.T) {
	ctx := newTestContext(t)

	tt := tensor.FromValues(1, 3, 1, 1, 1, 2, 3)
	if err := Softmax(ctx, tt, tt); err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}

	compareSlices(t, []float32{0.090031, 0.244728, 0.665241}, tt.Data(), 1e-5)
}

func TestSoftmaxGradientAssigns(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 2, 1, 1, 0.25, 0.75)
	gi := tensor.FromValues(1, 2, 1, 1, 1, 2)
	grad := tensor.FromValues(1, 2, 1, 1, 100, 100) // stale values must be overwritten

	// grad = dest * (gi - dot(gi, dest)), dot = 1.75
	if err := SoftmaxGradient(ctx, grad, dest, gi); err != nil {
		t.Fatalf("SoftmaxGradient failed: %v", err)
	}

	compareSlices(t, []float32{-0.1875, 0.1875}, grad.Data(), 1e-6)
}

func TestSoftmaxGradientSharedWithGradientInput(t *testing.T) {
	ctx := newTestContext(t)

	dest := tensor.FromValues(1, 2, 1, 1, 0.25, 0.75)
	gi := tensor.FromValues(1, 2, 1, 1, 1, 2)
	grad := tensor.New(1, 2, 1, 1)
	if err := SoftmaxGradient(ctx, grad, dest, gi); err != nil {
		t.Fatalf("SoftmaxGradient failed: %v", err)
	}

	// The same tensor may carry gi in and the gradient out.
	shared := tensor.FromValues(1, 2, 1, 1, 1, 2)
	if err := SoftmaxGradient(ctx, shared, dest, shared); err != nil {
		t.Fatalf("SoftmaxGradient failed: %v", err)
	}
	compareSlices(t, grad.Data(), shared.Data(), 1e-6)
}

func TestConvBiasGradient(t *testing.T) {
	ctx := newTestContext(t)

	gi := tensor.FromValues(2, 2, 1, 2,
		1, 2, // n0 k0
		3, 4, // n0 k1
		5, 6, // n1 k0
		7, 8) // n1 k1
	grad := tensor.FromValues(1, 2, 1, 1, -9, -9) // stale values must be overwritten

	if err := ConvBiasGradient(ctx, grad, gi); err != nil {
		t.Fatalf("ConvBiasGradient failed: %v", err)
	}

	compareSlices(t, []float32{14, 22}, grad.Data(), 1e-6)
}

func TestConvBiasGradientShapePanics(t *testing.T) {
	ctx := newTestContext(t)

	gi := tensor.New(1, 3, 2, 2)
	grad := tensor.New(1, 2, 1, 1)
	defer func() {
		if recover() == nil {
			t.Error("ConvBiasGradient with mismatched channel count should panic")
		}
	}()
	_ = ConvBiasGradient(ctx, grad, gi)
}

func TestTensorDescriptorZeroNormalization(t *testing.T) {
	ctx := newTestContext(t)

	desc := NewTensorDescriptor(ctx)
	defer desc.Release()

	if err := desc.SetSize(2, 3, 0, 5); err != nil {
		t.Fatalf("SetSize failed: %v", err)
	}

	n, k, nr, nc := desc.Size()
	if n != 0 || k != 0 || nr != 0 || nc != 0 {
		t.Errorf("Size() = (%d, %d, %d, %d), want all zero", n, k, nr, nc)
	}
}

func TestTensorDescriptorNegativeRejected(t *testing.T) {
	ctx := newTestContext(t)

	desc := NewTensorDescriptor(ctx)
	defer desc.Release()

	if err := desc.SetSize(1, -1, 1, 1); err == nil {
		t.Error("SetSize with a negative dimension should fail")
	}
}
