package control

import "testing"

func TestResult_String(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{Proceed, "Proceed"},
		{Halt, "Halt"},
		{Result(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.result.String(); got != tt.want {
			t.Errorf("Result(%d).String() = %s, want %s", tt.result, got, tt.want)
		}
	}
}

func TestResult_Continue(t *testing.T) {
	if !Proceed.Continue() {
		t.Error("Proceed.Continue() = false, want true")
	}
	if Halt.Continue() {
		t.Error("Halt.Continue() = true, want false")
	}
	if Result(7).Continue() {
		t.Error("Result(7).Continue() = true, want false")
	}

	var zero Result
	if zero != Proceed {
		t.Errorf("zero Result = %v, want Proceed", zero)
	}
}
