package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/teleprompt/internal/align"
)

func collect(t *testing.T, script, transcript string) ([]replayStep, error) {
	t.Helper()
	var steps []replayStep
	err := replay(align.NewScript(script), align.NewAligner(), strings.NewReader(transcript), func(s replayStep) error {
		steps = append(steps, s)
		return nil
	})
	return steps, err
}

func TestReplay_AccumulatesSegments(t *testing.T) {
	t.Parallel()
	steps, err := collect(t, "one two three four", "one two\n\nthree four\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Line != 1 || steps[0].Result.Offset != 8 {
		t.Errorf("step 0 = line %d offset %d, want line 1 offset 8", steps[0].Line, steps[0].Result.Offset)
	}
	if steps[1].Line != 3 || steps[1].Result.Offset != 18 || steps[1].State != align.StateDone {
		t.Errorf("step 1 = %+v, want offset 18 done", steps[1])
	}
}

func TestReplay_Directives(t *testing.T) {
	t.Parallel()
	transcript := strings.Join([]string{
		"#jump 8",
		"three",
		"#pause",
		"four",
		"#resume",
		"four",
	}, "\n")
	steps, err := collect(t, "one two three four", transcript)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		offset int
		state  align.State
	}{
		{8, align.StateActive},
		{14, align.StateActive},
		{14, align.StatePaused},
		{14, align.StatePaused},
		{14, align.StateActive},
		{18, align.StateDone},
	}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, w := range want {
		if steps[i].Result.Offset != w.offset || steps[i].State != w.state {
			t.Errorf("step %d (%q): offset %d state %v, want %d %v",
				i, steps[i].Input, steps[i].Result.Offset, steps[i].State, w.offset, w.state)
		}
	}
	if !steps[3].Result.Ignored {
		t.Error("update while paused should be ignored")
	}
}

func TestReplay_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		transcript string
		want       string
	}{
		{name: "unknown directive", transcript: "one\n#rewind", want: `line 2: unknown directive "rewind"`},
		{name: "bad jump offset", transcript: "#jump x", want: "line 1: jump"},
		{name: "jump out of range", transcript: "\n#jump 500", want: "line 2: align: offset out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := collect(t, "one two", tt.transcript)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestFormatStep(t *testing.T) {
	t.Parallel()
	script := align.NewScript("one two three")
	var buf bytes.Buffer
	got := formatStep(script, replayStep{
		Line:   4,
		Result: align.Result{Offset: 4, Winner: align.StrategyWord},
		State:  align.StateActive,
	}, newStyles(&buf))
	for _, part := range []string{"   4", "word", "active", "one ", "two three"} {
		if !strings.Contains(got, part) {
			t.Errorf("formatStep = %q, missing %q", got, part)
		}
	}
}

func TestReplayCmd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "script.txt", "Hello brave new world")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("hello brave\nnew world\n"))
	cmd.SetArgs([]string{"replay", "--script", scriptPath})
	if err := cmd.ExecuteContext(t.Context()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output has %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "   21 ") || !strings.Contains(lines[1], "done") {
		t.Errorf("last line = %q, want offset 21 and state done", lines[1])
	}
}

func TestReplayCmd_RequiresScript(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay"})
	if err := cmd.ExecuteContext(t.Context()); err == nil {
		t.Fatal("expected an error without --script")
	}
}
