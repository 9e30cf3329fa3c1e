package handler

import (
	"testing"
)

func TestValidationMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  any
		want string
	}{
		{name: "missing serial", req: &createSlabRequest{}, want: "serial is required"},
		{name: "negative width", req: &createSlabRequest{Serial: "SN-1", Width: -2}, want: "width must be at least 0"},
		{name: "missing status", req: &transitionRequest{}, want: "status is required"},
		{name: "empty target id", req: &batchRequest{Kind: "export", TargetIDs: []string{"a", ""}}, want: "targetIds[1] is required"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validate.Struct(tt.req)
			if err == nil {
				t.Fatal("Struct() error = nil, want validation error")
			}
			if got := validationMessage(err); got != tt.want {
				t.Fatalf("validationMessage() = %q, want %q", got, tt.want)
			}
		})
	}

	if err := validate.Struct(&batchRequest{Kind: "export", TargetIDs: []string{"a"}}); err != nil {
		t.Fatalf("Struct() error = %v, want nil", err)
	}
}
