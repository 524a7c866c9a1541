package executor

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "em dash with spaces becomes comma",
			input: "Nice work — really clever",
			want:  "Nice work, really clever",
		},
		{
			name:  "bare em dash becomes comma",
			input: "thoughtful—and practical",
			want:  "thoughtful, and practical",
		},
		{
			name:  "en dash range becomes hyphen",
			input: "the 2023–2024 season",
			want:  "the 2023-2024 season",
		},
		{
			name:  "en dash with spaces becomes comma",
			input: "great point – well argued",
			want:  "great point, well argued",
		},
		{
			name:  "comma before period collapses",
			input: "Agreed —. Well said",
			want:  "Agreed. Well said",
		},
		{
			name:  "double commas collapse",
			input: "yes,— of course",
			want:  "yes, of course",
		},
		{
			name:  "plain text untouched",
			input: "This is a great take on the problem.",
			want:  "This is a great take on the problem.",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeText(tt.input); got != tt.want {
				t.Errorf("sanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
