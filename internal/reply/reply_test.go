package reply

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "fenced json",
			raw:  "Here you go:\n```json\n{\"translations\": [\"a\",\"b\",\"c\",\"d\"]}\n```\nEnjoy.",
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "fenced with original phrase",
			raw:  "```\n{\n  \"original_phrase\": \"x\",\n  \"translations\": [\"一\",\"二\",\"三\",\"四\"]\n}\n```",
			want: []string{"一", "二", "三", "四"},
		},
		{
			name: "bare json",
			raw:  `{"translations": ["a","b","c","d"]}`,
			want: []string{"a", "b", "c", "d"},
		},
		{
			name:    "three elements",
			raw:     "```\n{\"translations\": [\"a\",\"b\",\"c\"]}\n```",
			wantErr: true,
		},
		{
			name:    "not a list",
			raw:     `{"translations": "a, b, c, d"}`,
			wantErr: true,
		},
		{
			name:    "list of numbers",
			raw:     `{"translations": [1,2,3,4]}`,
			wantErr: true,
		},
		{
			name:    "missing key",
			raw:     `{"variants": ["a","b","c","d"]}`,
			wantErr: true,
		},
		{
			name:    "fence without object",
			raw:     "```\nsorry, I cannot\n```",
			wantErr: true,
		},
		{
			name:    "prose",
			raw:     "I think the answer is a monkey.",
			wantErr: true,
		},
		{
			// Only the first fenced segment is considered.
			name:    "object in second block",
			raw:     "```\nnothing\n```\n```\n{\"translations\": [\"a\",\"b\",\"c\",\"d\"]}\n```",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.raw)
			if tc.wantErr {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("expected *FormatError, got %v", err)
				}
				if fe.Raw != tc.raw {
					t.Error("FormatError.Raw does not carry the raw reply")
				}
				if !errors.Is(err, ErrFormat) {
					t.Error("FormatError should match ErrFormat")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestExtract_UnterminatedFence(t *testing.T) {
	t.Parallel()
	got, err := Extract("```json\n{\"translations\": []}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "{\"translations\": []}" {
		t.Errorf("Extract = %q", got)
	}
}
