package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/teleprompt/internal/align"
)

// contextRunes is how much script is printed around the reading position.
const contextRunes = 32

type replayOptions struct {
	script     string
	transcript string
	lookahead  int
	phonetic   float64
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Align a recorded transcript against a script",
		Long: `replay feeds a transcript file line by line through the aligner and
prints the reading position after every line.

Each line is one final transcript segment. Segments accumulate like a live
recognition pass. Lines starting with '#' are directives:

  #jump N    move the reading position to rune offset N
  #pause     stop following
  #resume    continue following from the current position
  #rebase    start a new pass at the current position`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(opts.script)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			in := cmd.InOrStdin()
			if opts.transcript != "-" {
				f, err := os.Open(opts.transcript)
				if err != nil {
					return fmt.Errorf("open transcript: %w", err)
				}
				defer f.Close()
				in = f
			}

			var matcherOpts []align.MatcherOption
			if opts.phonetic > 0 {
				matcherOpts = append(matcherOpts, align.WithPhonetic(opts.phonetic))
			}
			a := align.NewAligner(align.WithLookahead(opts.lookahead), align.WithMatcher(align.NewMatcher(matcherOpts...)))

			script := align.NewScript(string(raw))
			out := cmd.OutOrStdout()
			st := newStyles(out)
			return replay(script, a, in, func(s replayStep) error {
				_, err := fmt.Fprintln(out, formatStep(script, s, st))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&opts.script, "script", "", "path to the script text")
	cmd.Flags().StringVar(&opts.transcript, "transcript", "-", `path to the transcript, "-" for stdin`)
	cmd.Flags().IntVar(&opts.lookahead, "lookahead", 3, "alignment lookahead window")
	cmd.Flags().Float64Var(&opts.phonetic, "phonetic", 0, "enable phonetic matching at this Jaro-Winkler threshold")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// replayStep is the session after one transcript line.
type replayStep struct {
	Line   int
	Input  string
	Result align.Result
	State  align.State
}

// replay runs every line of r through a fresh session on script and calls
// emit after each one. Directive errors carry the line number.
func replay(script *align.Script, a *align.Aligner, r io.Reader, emit func(replayStep) error) error {
	session := align.NewSession(a)
	gen := session.Start(script)
	var segments []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		step := replayStep{Line: n, Input: line}
		if directive, ok := strings.CutPrefix(line, "#"); ok {
			name, arg, _ := strings.Cut(strings.TrimSpace(directive), " ")
			switch name {
			case "jump":
				offset, err := strconv.Atoi(strings.TrimSpace(arg))
				if err != nil {
					return fmt.Errorf("line %d: jump: %w", n, err)
				}
				if err := session.JumpTo(offset); err != nil {
					return fmt.Errorf("line %d: %w", n, err)
				}
				gen = session.Generation()
			case "pause":
				session.Pause()
			case "resume":
				gen = session.Resume()
			case "rebase":
				gen = session.Rebase()
			default:
				return fmt.Errorf("line %d: unknown directive %q", n, name)
			}
			segments = segments[:0]
			step.Result = align.Result{Offset: session.Recognized(), Winner: align.StrategyNone}
		} else {
			segments = append(segments, line)
			step.Result = session.Update(gen, strings.Join(segments, " "))
		}
		step.State = session.State()
		if err := emit(step); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	return nil
}

// formatStep prints the offset, the winning strategy, the state and the
// script around the reading position.
func formatStep(script *align.Script, s replayStep, st styles) string {
	text := []rune(script.Text())
	off := s.Result.Offset
	from := max(off-contextRunes, 0)
	to := min(off+contextRunes, len(text))
	return fmt.Sprintf("%4d %5d %-4s %-6s %s%s",
		s.Line, off, s.Result.Winner, s.State,
		st.read.Render(string(text[from:off])), st.ahead.Render(string(text[off:to])))
}
