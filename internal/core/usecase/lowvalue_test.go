package usecase

import (
	"strings"
	"testing"
)

func narrative(topic string, sentences int) string {
	parts := make([]string, 0, sentences)
	for i := 0; i < sentences; i++ {
		parts = append(parts, "The "+topic+" section describes how the system behaves when requests arrive and how operators observe it.")
	}
	return strings.Join(parts, " ")
}

func TestIsLowValue(t *testing.T) {
	definition := "Retrieval augmented generation is defined as the process of grounding a language model answer in passages fetched from an external document index."
	definition250 := definition + " " + strings.Repeat("It keeps answers tied to sources. ", 3)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "narrative prose", text: narrative("overview", 4), want: false},
		{name: "short fragment", text: "Table of contents and a few words.", want: true},
		{name: "short definition", text: definition, want: false},
		{name: "250 char definition", text: definition250, want: false},
		{name: "definition too short", text: "RAG stands for it.", want: true},
		{
			name: "short definition inside a reference list",
			text: "References\n[1] A. Smith. Dense retrieval refers to ranking passages by embedding similarity. In Proc. SIGIR, 2020.",
			want: true,
		},
		{name: "references heading", text: "References\n" + narrative("citations", 4), want: true},
		{name: "bibliography late in head", text: strings.Repeat("word ", 40) + "Bibliography " + narrative("books", 3), want: true},
		{
			name: "author list",
			text: "Alice Smith, Bob Jones, Carol White, Dan Brown, Eve Black, Frank Green, Grace Hall, " +
				"Google Research, Stanford University, Microsoft, OpenAI, " + narrative("authors", 2),
			want: true,
		},
		{
			name: "commas without institutions",
			text: "apples, pears, plums, figs, dates, limes, kiwis, grapes, melons, cherries, " + narrative("fruit", 2),
			want: false,
		},
		{
			name: "numeric table",
			text: strings.Repeat("12.5 33.1 47.9 88.0 91.2 10.4\n", 8),
			want: true,
		},
		{
			name: "numbers on a single line",
			text: strings.Repeat("12.5 33.1 47.9 88.0 91.2 10.4 ", 8),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLowValue(tt.text); got != tt.want {
				t.Fatalf("IsLowValue() = %v, want %v (len=%d)", got, tt.want, len(tt.text))
			}
		})
	}
}

func TestIsLowValueRejectsReferencesCaseInsensitive(t *testing.T) {
	text := narrative("intro", 1) + " REFERENCES " + narrative("tail", 3)
	if !IsLowValue(text) {
		t.Fatalf("expected chunk with REFERENCES in head to be rejected")
	}
}
