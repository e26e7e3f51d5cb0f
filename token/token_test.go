package token

import "testing"

func TestIsControlKeyword(t *testing.T) {
	for key := range controlKeywords {
		if !IsControlKeyword(key) {
			t.Errorf("expected %q to be recognized as a control keyword", key)
		}
	}

	for _, word := range []string{"dup", "swap", "foo", ""} {
		if IsControlKeyword(word) {
			t.Errorf("did not expect %q to be a control keyword", word)
		}
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{EOF, "EOF"},
		{INT, "INT"},
		{FLOAT, "FLOAT"},
		{STRING, "STRING"},
		{IDENT, "IDENT"},
		{COLON, "COLON"},
		{SEMICOLON, "SEMICOLON"},
		{CONTROL, "CONTROL"},
		{STACKCOMMENT, "STACKCOMMENT"},
		{LINECOMMENT, "LINECOMMENT"},
		{Kind(999), "UNKNOWN"},
	}

	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Line: 3, Column: 7}
	if got, want := loc.String(), "3:7"; got != want {
		t.Errorf("Location.String() = %q, want %q", got, want)
	}

	loc.File = "prog.fs"
	if got, want := loc.String(), "prog.fs:3:7"; got != want {
		t.Errorf("Location.String() = %q, want %q", got, want)
	}
}
