package zone

import "testing"

func TestZoneByName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "inside", input: "inside", want: "Inside", found: true},
		{name: "takeout", input: "takeout", want: "Takeout", found: true},
		{name: "unknown", input: "rooftop", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := ByName(tt.input)
			if (z != nil) != tt.found {
				t.Fatalf("ByName(%q) found = %v, want %v", tt.input, z != nil, tt.found)
			}
			if z != nil && z.Label() != tt.want {
				t.Errorf("Label() = %q, want %q", z.Label(), tt.want)
			}
		})
	}
}

func TestZoneValid(t *testing.T) {
	if !Valid("") {
		t.Error("empty zone should be valid")
	}
	if Valid("rooftop") {
		t.Error("unknown zone should be invalid")
	}
}
