package parse

import "testing"

func TestObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantVal any
		wantErr bool
	}{
		{"strict json", `{"location":"Paris"}`, "location", "Paris", false},
		{"single quotes", `{'location': 'Paris'}`, "location", "Paris", false},
		{"bare keys", `{location: "Paris"}`, "location", "Paris", false},
		{"trailing comma", `{"location": "Paris",}`, "location", "Paris", false},
		{"truncated object", `{"location": "Par`, "location", "Par", false},
		{"not an object", `[1, 2, 3]`, "", nil, true},
		{"plain prose", `no json here at all`, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Object(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Object() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got[tt.wantKey] != tt.wantVal {
				t.Errorf("Object()[%q] = %v, want %v", tt.wantKey, got[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestAs(t *testing.T) {
	type weather struct {
		Location string `json:"location"`
		Unit     string `json:"unit"`
	}

	got, err := As[weather](`{"location":"Paris","unit":"celsius"}`)
	if err != nil {
		t.Fatalf("As() error = %v", err)
	}
	if got.Location != "Paris" || got.Unit != "celsius" {
		t.Errorf("As() = %+v", got)
	}

	got, err = As[weather](`{location: 'Lyon', unit: 'celsius',}`)
	if err != nil {
		t.Fatalf("As() with repair error = %v", err)
	}
	if got.Location != "Lyon" {
		t.Errorf("As() with repair = %+v", got)
	}

	if _, err := As[weather](`not even close`); err == nil {
		t.Error("As() expected error for unrepairable content")
	}
}
