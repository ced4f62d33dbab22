package memory

import "testing"

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"system", CategorySystem, false},
		{"user", CategoryUser, false},
		{"conversation", CategoryConversation, false},
		{"task", CategoryTask, false},
		{"knowledge", CategoryKnowledge, false},
		{"", "", true},
		{"bogus", "", true},
		{"User", "", true},
		{"knowledge ", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.wantErr {
			if !IsInvalidArgument(err) {
				t.Errorf("ParseCategory(%q) err = %v, want InvalidArgumentError", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCategory(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"medium", PriorityMedium, false},
		{"high", PriorityHigh, false},
		{"critical", PriorityCritical, false},
		{"", "", true},
		{"urgent", "", true},
		{"HIGH", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if tt.wantErr {
			if !IsInvalidArgument(err) {
				t.Errorf("ParsePriority(%q) err = %v, want InvalidArgumentError", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePriority(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnumListings(t *testing.T) {
	if got := len(Categories()); got != 5 {
		t.Errorf("Categories() returned %d entries, want 5", got)
	}
	for _, c := range Categories() {
		if !c.Valid() {
			t.Errorf("category %q reported invalid", c)
		}
	}

	if got := len(Priorities()); got != 4 {
		t.Errorf("Priorities() returned %d entries, want 4", got)
	}
	for _, p := range Priorities() {
		if !p.Valid() {
			t.Errorf("priority %q reported invalid", p)
		}
	}

	if !DefaultCategory.Valid() || !DefaultPriority.Valid() {
		t.Error("defaults must be members of their enums")
	}
}
