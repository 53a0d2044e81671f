package observability

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestAttributeConstructors(t *testing.T) {
	tests := []struct {
		name string
		attr Attribute
		key  string
		want any
	}{
		{"string", String("llm.provider", "openai"), "llm.provider", "openai"},
		{"empty string", String("llm.model", ""), "llm.model", ""},
		{"string slice", StringSlice("stop", []string{"END", "\n"}), "stop", []string{"END", "\n"}},
		{"int", Int("http.status", 429), "http.status", 429},
		{"int zero", Int("attempt", 0), "attempt", 0},
		{"int64", Int64("tokens.total", int64(128_000)), "tokens.total", int64(128_000)},
		{"float64", Float64("temperature", 0.7), "temperature", 0.7},
		{"bool", Bool("stream", true), "stream", true},
		{"duration", Duration(AttrDuration, 250 * time.Millisecond), AttrDuration, 250 * time.Millisecond},
		{"error", Error(errors.New("overloaded")), AttrError, "overloaded"},
		{"nil error", Error(nil), AttrError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("Key = %q, want %q", tt.attr.Key, tt.key)
			}
			if !reflect.DeepEqual(tt.attr.Value, tt.want) {
				t.Errorf("Value = %v (%T), want %v (%T)", tt.attr.Value, tt.attr.Value, tt.want, tt.want)
			}
		})
	}
}

func TestStatusCodeOrdering(t *testing.T) {
	// The zero value must mean "unset" so freshly built spans report no status.
	if StatusUnset != 0 {
		t.Errorf("StatusUnset = %d, want 0", StatusUnset)
	}
	if StatusOK != 1 || StatusError != 2 {
		t.Errorf("StatusOK, StatusError = %d, %d, want 1, 2", StatusOK, StatusError)
	}
}
