package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTypstClozes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []ClozeMatch
	}{
		{
			name:  "basic cloze",
			input: "Test #cl[basic] asd",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{14, 15}},
			},
		},
		{
			name:  "empty settings",
			input: "Test #cl[basic][] cloze",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{14, 17}},
			},
		},
		{
			name:  "escaped opener",
			input: "Test \\#cl[basic] cloze",
			want:  nil,
		},
		{
			name:  "commented line skipped",
			input: "// Test #cl[basic] cloze\n #cl[b]",
			want: []ClozeMatch{
				{StartMatch: Span{26, 30}, EndMatch: Span{31, 32}},
			},
		},
		{
			name:  "unmatched open emits nothing",
			input: "Test #cl[ test",
			want:  nil,
		},
		{
			name:  "math mode suspends delimiters",
			input: "test #cl[$\na b)\n\n$][g:1] test",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{18, 24}, SettingsMatch: Span{20, 23}},
			},
		},
		{
			name:  "code call inside cloze",
			input: "test #cl[#(let a = 2)][g:1] test",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{21, 27}, SettingsMatch: Span{23, 26}},
			},
		},
		{
			name:  "nested clozes outer first",
			input: "test #cl[#cl[b][g:1]#cl[$a s (d)$]][g:1] test",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{34, 40}, SettingsMatch: Span{36, 39}},
				{StartMatch: Span{9, 13}, EndMatch: Span{14, 20}, SettingsMatch: Span{16, 19}},
				{StartMatch: Span{20, 24}, EndMatch: Span{33, 34}},
			},
		},
		{
			name:  "empty cloze body",
			input: "Test #cl[] end",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{9, 10}},
			},
		},
		{
			name:  "other function inside cloze",
			input: "#cl[ - mnemonic: #strong[c]url = #strong[c]ross product ]",
			want: []ClozeMatch{
				{StartMatch: Span{0, 4}, EndMatch: Span{56, 57}},
			},
		},
	}

	p := &Typst{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Clozes(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Clozes(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestMarkdownClozes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []ClozeMatch
	}{
		{
			name:  "basic cloze",
			input: "Test {{basic}} cloze",
			want: []ClozeMatch{
				{StartMatch: Span{5, 7}, EndMatch: Span{12, 14}},
			},
		},
		{
			name:  "empty settings",
			input: "Test {{[] basic}} cloze",
			want: []ClozeMatch{
				{StartMatch: Span{5, 9}, EndMatch: Span{15, 17}},
			},
		},
		{
			name:  "commented out",
			input: "Test <!--- {{[] basic}} cloze ---> word",
			want:  nil,
		},
		{
			name:  "escaped opener",
			input: "Test \\{{[] basic}} cloze",
			want:  nil,
		},
		{
			name:  "unmatched open emits nothing",
			input: "Test {{ test",
			want:  nil,
		},
		{
			name:  "inline math with escapes",
			input: "Test {{[o:1] $ \\$ 3^{2^{2}}$}} complex",
			want: []ClozeMatch{
				{StartMatch: Span{5, 12}, EndMatch: Span{28, 30}, SettingsMatch: Span{8, 11}},
			},
		},
		{
			name:  "nested cloze",
			input: "Test {{[o:1] outer {{inner}}}} complex",
			want: []ClozeMatch{
				{StartMatch: Span{5, 12}, EndMatch: Span{28, 30}, SettingsMatch: Span{8, 11}},
				{StartMatch: Span{19, 21}, EndMatch: Span{26, 28}},
			},
		},
		{
			name:  "nested cloze with sibling",
			input: "Test {{[o:1] outer {{inner}} {{sibling}}}} complex",
			want: []ClozeMatch{
				{StartMatch: Span{5, 12}, EndMatch: Span{40, 42}, SettingsMatch: Span{8, 11}},
				{StartMatch: Span{19, 21}, EndMatch: Span{26, 28}},
				{StartMatch: Span{29, 31}, EndMatch: Span{38, 40}},
			},
		},
		{
			name:  "display math suspends delimiters",
			input: "Test $$\n  x = {{2}}\n$$ {{content}} end",
			want: []ClozeMatch{
				{StartMatch: Span{23, 25}, EndMatch: Span{32, 34}},
			},
		},
		{
			name:  "math block suspends delimiters",
			input: "Test ```math\nx = {{2}}\n``` {{content}} end",
			want: []ClozeMatch{
				{StartMatch: Span{27, 29}, EndMatch: Span{36, 38}},
			},
		},
		{
			name:  "empty cloze body",
			input: "Test {{}} end",
			want: []ClozeMatch{
				{StartMatch: Span{5, 7}, EndMatch: Span{7, 9}},
			},
		},
	}

	p := &Markdown{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Clozes(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Clozes(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestFind(t *testing.T) {
	for _, name := range []string{"typst", "markdown"} {
		p, err := Find(name)
		if err != nil {
			t.Fatalf("Find(%q): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("Find(%q).Name() = %q", name, p.Name())
		}
	}

	if _, err := Find("latex"); err == nil {
		t.Error("Find of unknown parser should fail")
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("markdown-basic"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "Markdown", "mark_down", "md1"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("invalid name %q accepted", bad)
		}
	}
}
