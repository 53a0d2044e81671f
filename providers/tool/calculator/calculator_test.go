package calculator

import (
	"context"
	"testing"
)

func TestCalc(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		want    float64
		wantErr bool
	}{
		{"add", Input{A: 2, B: 3, Op: "add"}, 5, false},
		{"add symbol", Input{A: 2, B: 3, Op: "+"}, 5, false},
		{"sub", Input{A: 10, B: 4, Op: "sub"}, 6, false},
		{"mul", Input{A: 6, B: 7, Op: "mul"}, 42, false},
		{"div", Input{A: 10, B: 4, Op: "div"}, 2.5, false},
		{"div by zero", Input{A: 1, B: 0, Op: "div"}, 0, true},
		{"unknown op", Input{A: 1, B: 2, Op: "pow"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Calc(context.Background(), tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Calc() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && out.Result != tt.want {
				t.Errorf("Calc() = %v, want %v", out.Result, tt.want)
			}
		})
	}
}

func TestToolDefinition(t *testing.T) {
	def := New().Definition()
	if def.Name != Name {
		t.Errorf("name = %q, want %q", def.Name, Name)
	}
	if def.Description == "" {
		t.Error("description is empty")
	}
	if def.InputSchema == nil {
		t.Fatal("input schema is nil")
	}
	if def.InputSchema["type"] != "object" {
		t.Errorf("schema type = %v, want object", def.InputSchema["type"])
	}
}
