package screener

import (
	"errors"
	"strings"
	"testing"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

func answerAll(t *testing.T, in *Instrument, values []int) (*entities.ScreenerState, bool) {
	t.Helper()

	state, err := in.OptIn(in.NewState())
	if err != nil {
		t.Fatalf("OptIn() error = %v", err)
	}

	var complete bool
	for i, v := range values {
		state, complete, err = in.Advance(state, in.Questions[i].ID, v)
		if err != nil {
			t.Fatalf("Advance(%d) error = %v", i, err)
		}
		if complete != (i == len(in.Questions)-1) {
			t.Fatalf("Unexpected completion at %d", i)
		}
	}
	return state, complete
}

func TestBands(t *testing.T) {
	tests := []struct {
		name  string
		in    *Instrument
		total int
		want  Band
	}{
		{"phq zero", PHQ9, 0, BandMinimal},
		{"phq 4", PHQ9, 4, BandMinimal},
		{"phq 5", PHQ9, 5, BandMild},
		{"phq 9", PHQ9, 9, BandMild},
		{"phq 10", PHQ9, 10, BandModerate},
		{"phq 14", PHQ9, 14, BandModerate},
		{"phq 15", PHQ9, 15, BandModeratelySevere},
		{"phq 19", PHQ9, 19, BandModeratelySevere},
		{"phq 20", PHQ9, 20, BandSevere},
		{"phq max", PHQ9, 27, BandSevere},
		{"gad 4", GAD7, 4, BandMinimal},
		{"gad 5", GAD7, 5, BandMild},
		{"gad 12", GAD7, 12, BandModerate},
		{"gad 15", GAD7, 15, BandSevere},
		{"gad max", GAD7, 21, BandSevere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Band(tt.total); got != tt.want {
				t.Errorf("Expected band %s, got %s", tt.want, got)
			}
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	rank := map[Band]int{
		BandMinimal:          0,
		BandMild:             1,
		BandModerate:         2,
		BandModeratelySevere: 3,
		BandSevere:           4,
	}

	for _, in := range []*Instrument{PHQ9, GAD7} {
		previous := -1
		for total := 0; total <= in.MaxScore(); total++ {
			r := rank[in.Band(total)]
			if r < previous {
				t.Errorf("%s: band decreased at total %d", in.ID, total)
			}
			previous = r
		}

		// raising any single item never lowers the band
		answers := map[string]int{}
		for _, q := range in.Questions {
			answers[q.ID] = 1
		}
		_, base := in.Score(answers)
		for _, q := range in.Questions {
			raised := map[string]int{}
			for k, v := range answers {
				raised[k] = v
			}
			raised[q.ID] = MaxValue
			if _, band := in.Score(raised); rank[band] < rank[base] {
				t.Errorf("%s: raising %s lowered band", in.ID, q.ID)
			}
		}
	}
}

func TestGADModerateScenario(t *testing.T) {
	state, complete := answerAll(t, GAD7, []int{2, 2, 2, 2, 2, 1, 1})
	if !complete {
		t.Fatal("Expected completion")
	}

	result := GAD7.Complete(state.Answers)
	if result.Total != 12 {
		t.Errorf("Expected total 12, got %d", result.Total)
	}
	if result.Band != BandModerate {
		t.Errorf("Expected band moderate, got %s", result.Band)
	}
	if result.Escalate {
		t.Error("GAD-7 should never escalate")
	}
	if !strings.HasPrefix(result.Summary, "Your score suggests moderate anxiety.") {
		t.Errorf("Unexpected summary: %s", result.Summary)
	}
}

func TestSelfHarmGate(t *testing.T) {
	tests := []struct {
		name     string
		values   []int
		escalate bool
	}{
		{"only self-harm item", []int{0, 0, 0, 0, 0, 0, 0, 0, 3}, true},
		{"self-harm item at 1", []int{3, 3, 3, 3, 3, 3, 3, 3, 1}, true},
		{"self-harm item at zero", []int{3, 3, 3, 3, 3, 3, 3, 3, 0}, false},
		{"all zero", []int{0, 0, 0, 0, 0, 0, 0, 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, _ := answerAll(t, PHQ9, tt.values)
			result := PHQ9.Complete(state.Answers)
			if result.Escalate != tt.escalate {
				t.Errorf("Expected escalate %v, got %v", tt.escalate, result.Escalate)
			}
			if tt.escalate && !strings.Contains(result.Summary, "thoughts of self-harm") {
				t.Errorf("Expected self-harm notice in summary, got %s", result.Summary)
			}
			if !tt.escalate && !strings.Contains(result.Summary, "not a diagnosis") {
				t.Errorf("Expected closing notice in summary, got %s", result.Summary)
			}
		})
	}
}

func TestAdvanceRejections(t *testing.T) {
	fresh := PHQ9.NewState()
	if _, _, err := PHQ9.Advance(fresh, "phq1", 1); !errors.Is(err, ErrNotOptedIn) {
		t.Errorf("Expected ErrNotOptedIn, got %v", err)
	}
	if len(fresh.Answers) != 0 {
		t.Error("Pre-consent state must record no answers")
	}

	state, _ := PHQ9.OptIn(fresh)
	if _, _, err := PHQ9.Advance(state, "phq2", 1); !errors.Is(err, ErrWrongQuestion) {
		t.Errorf("Expected ErrWrongQuestion, got %v", err)
	}
	if _, _, err := PHQ9.Advance(state, "phq1", 4); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("Expected ErrValueOutOfRange, got %v", err)
	}
	if _, _, err := PHQ9.Advance(state, "phq1", -1); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("Expected ErrValueOutOfRange, got %v", err)
	}
	if _, _, err := GAD7.Advance(state, "gad1", 1); !errors.Is(err, ErrInstrument) {
		t.Errorf("Expected ErrInstrument, got %v", err)
	}

	next, complete, err := PHQ9.Advance(state, "phq1", 2)
	if err != nil || complete {
		t.Fatalf("Unexpected result: complete=%v err=%v", complete, err)
	}
	if next.Index != 1 {
		t.Errorf("Expected index 1, got %d", next.Index)
	}
	if _, ok := state.Answers["phq1"]; ok {
		t.Error("Advance must not mutate the input state")
	}

	done, _ := answerAll(t, GAD7, []int{0, 0, 0, 0, 0, 0, 0})
	if _, _, err := GAD7.Advance(done, "gad7", 1); !errors.Is(err, ErrAlreadyComplete) {
		t.Errorf("Expected ErrAlreadyComplete, got %v", err)
	}
}

func TestCurrent(t *testing.T) {
	state := GAD7.NewState()
	if _, ok := GAD7.Current(state); ok {
		t.Error("No question should be current before opt-in")
	}

	state, _ = GAD7.OptIn(state)
	q, ok := GAD7.Current(state)
	if !ok || q.ID != "gad1" {
		t.Errorf("Expected gad1, got %+v", q)
	}
}

func TestForMode(t *testing.T) {
	if in, ok := ForMode(entities.SessionModePHQ9); !ok || in != PHQ9 {
		t.Error("Expected PHQ9 for phq9 mode")
	}
	if in, ok := ForMode(entities.SessionModeGAD7); !ok || in != GAD7 {
		t.Error("Expected GAD7 for gad7 mode")
	}
	if _, ok := ForMode(entities.SessionModeChat); ok {
		t.Error("Chat mode has no instrument")
	}
}
