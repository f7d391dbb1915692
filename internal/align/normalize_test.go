package align_test

import (
	"testing"

	"github.com/MrWong99/teleprompt/internal/align"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"Café  au lait", "cafe  au lait"},
		{"It's 5 o'clock.", "its 5 oclock"},
		{"[pause] 🎉", "pause "},
		{"", ""},
		{"ÜBER\tstraße", "uber\tstraße"},
		{"한국 사람입니다.", "한국 사람입니다"},
		{"がっこう、ガッコウ", "がっこうガッコウ"},
		{"Tiếng Việt", "tieng viet"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := align.Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := align.Normalize(got); again != got {
				t.Errorf("Normalize is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"don't!":  "dont",
		"Señor,":  "senor",
		"--":      "",
		"a b":     "ab",
		"[Pause]": "pause",
		"한국":      "한국",
		"할거!":     "할거",
		"が":       "が",
		"パン":      "パン",
	} {
		if got := align.Strip(in); got != want {
			t.Errorf("Strip(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsAnnotationWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want bool
	}{
		{"[pause]", true},
		{"[laughs]", true},
		{"🎉", true},
		{"--", true},
		{"]", true},
		{"hello", false},
		{"[start", false},
		{"end]", false},
		{"42", false},
		{"(aside)", false},
	}
	for _, tt := range tests {
		if got := align.IsAnnotationWord(tt.word); got != tt.want {
			t.Errorf("IsAnnotationWord(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	t.Parallel()

	if got := align.Fold("Crème Brûlée!"); got != "Creme Brulee!" {
		t.Errorf("Fold = %q, want %q", got, "Creme Brulee!")
	}
	if got := align.Fold("がっこう 한국"); got != "がっこう 한국" {
		t.Errorf("Fold = %q, want kana voicing and hangul kept", got)
	}
}

func TestStrip_KeepsSyllables(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"한국", "할거"},
		{"사람", "시간"},
		{"が", "か"},
		{"パン", "ハン"},
	}
	for _, p := range pairs {
		if a, b := align.Strip(p[0]), align.Strip(p[1]); a == b {
			t.Errorf("Strip(%q) == Strip(%q) == %q", p[0], p[1], a)
		}
	}
}
