package similarity

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo Bar", "foo bar"},
		{"Foo-Bar", "foo bar"},
		{"  Brazzers   Exxtra ", "brazzers exxtra"},
		{"O'Reilly & Sons!", "o reilly sons"},
		{"under_score", "under_score"},
		{"Tab\tand\nnewline", "tab and newline"},
		{"", ""},
		{"!!!", ""},
		{"Beyoncé", "beyoncé"},
		{"Ünïcode Café", "ünïcode café"},
		{"三上悠亜", "三上悠亜"},
		{"明日花・キララ", "明日花 キララ"},
		{"Ólafur Arnalds", "ólafur arnalds"},
		{"Жанна-Д'Арк", "жанна д арк"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Foo-Bar", "  a  b  ", "Café Noir", "X.Y.Z.", "MiXeD CaSe 123", "—dash—", "",
		"三上悠亜", "明日花・キララ", "İstanbul", "e\u0301te",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"ab", "ba", 2}, // no transposition shortcut
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"Foo Bar", "Foo-Bar", 100},
		{"Foo Bar", "foo bar", 100},
		{"", "Foo", 0},
		{"Foo", "", 0},
		{"kitten", "sitting", 57},
		{"abcd", "abce", 75},
		{"abc", "xyz", 0},
		{"三上悠亜", "明日花キララ", 0},
		{"三上悠亜", "三上 悠亜", 80},
		{"Beyoncé", "Beyonce", 86},
		{"Beyoncé", "BEYONCÉ", 100},
		{"!!!", "???", 0},
		{"!!!", "!!!", 100},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilaritySelfAndSymmetry(t *testing.T) {
	names := []string{"Reality Kings", "a", "Jane Doe", "!!!", "Ünïcode", "x-y-z"}
	for _, a := range names {
		if got := Similarity(a, a); got != 100 {
			t.Errorf("Similarity(%q, %q) = %d, want 100", a, a, got)
		}
		for _, b := range names {
			if Similarity(a, b) != Similarity(b, a) {
				t.Errorf("Similarity not symmetric for %q / %q", a, b)
			}
		}
	}
}

func TestMatchWithAliases(t *testing.T) {
	if got := MatchWithAliases("Jane Doe", "Janet Dough", []string{"Jane Doe"}); got != 100 {
		t.Errorf("alias hit = %d, want 100", got)
	}

	base := Similarity("Studio X", "Studio Y")
	cases := [][]string{nil, {}, {"unrelated"}, {"Studio Y"}, {"Studio X"}}
	for _, aliases := range cases {
		if got := MatchWithAliases("Studio X", "Studio Y", aliases); got < base {
			t.Errorf("MatchWithAliases with %v = %d, below name score %d", aliases, got, base)
		}
	}
}

func TestBestMatch(t *testing.T) {
	got := BestMatch([]string{"J. Doe", "Jane Doe"}, "Jane D", []string{"Jane Doe"})
	if got != 100 {
		t.Errorf("BestMatch = %d, want 100", got)
	}
	if got := BestMatch([]string{"", ""}, "Jane", nil); got != 0 {
		t.Errorf("BestMatch with empty names = %d, want 0", got)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score int
		want  Confidence
	}{
		{100, ConfidenceHigh},
		{95, ConfidenceHigh},
		{94, ConfidenceMedium},
		{70, ConfidenceMedium},
		{69, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}

	custom := Thresholds{High: 80, Medium: 50}
	if got := custom.Level(85); got != ConfidenceHigh {
		t.Errorf("custom Level(85) = %s, want high", got)
	}
	if got := custom.Level(60); got != ConfidenceMedium {
		t.Errorf("custom Level(60) = %s, want medium", got)
	}
}

func TestPunctuationDrift(t *testing.T) {
	if Normalize("Foo Bar") != Normalize("Foo-Bar") {
		t.Fatal("expected identical normalized forms")
	}
	score := Similarity("Foo Bar", "Foo-Bar")
	if score != 100 {
		t.Fatalf("score = %d, want 100", score)
	}
	if Level(score) != ConfidenceHigh {
		t.Errorf("level = %s, want high", Level(score))
	}
}

func TestNonLatinNamesDoNotCollide(t *testing.T) {
	a, b := "三上悠亜", "明日花キララ"
	if Normalize(a) == "" || Normalize(b) == "" {
		t.Fatalf("non-Latin names must survive normalization: %q %q", Normalize(a), Normalize(b))
	}
	score := Similarity(a, b)
	if Level(score) == ConfidenceHigh {
		t.Errorf("Similarity(%q, %q) = %d, unrelated names must not be high confidence", a, b, score)
	}
	if got := MatchWithAliases(a, b, []string{"キララ"}); got >= 95 {
		t.Errorf("MatchWithAliases = %d, want below auto threshold", got)
	}
}
