package screener

import "github.com/satriahrh/peacepal/server/domain/entities"

// Question is a single questionnaire item
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Option is a selectable answer shared by every item of both instruments
type Option struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Band is a severity band label
type Band string

const (
	BandMinimal          Band = "minimal"
	BandMild             Band = "mild"
	BandModerate         Band = "moderate"
	BandModeratelySevere Band = "moderately severe"
	BandSevere           Band = "severe"
)

// threshold maps an inclusive upper score bound to a band
type threshold struct {
	Max  int
	Band Band
}

// Instrument describes a questionnaire together with its scoring table
type Instrument struct {
	ID        string
	Mode      entities.SessionMode
	Condition string
	Questions []Question
	// SelfHarmItem is the question that routes completion into triage when non-zero. Empty when
	// the instrument has no such item.
	SelfHarmItem string
	thresholds   []threshold
	ceiling      Band
}

const (
	MinValue = 0
	MaxValue = 3
)

// Options lists the answer choices in display order
var Options = []Option{
	{Text: "Not at all", Value: 0},
	{Text: "Several days", Value: 1},
	{Text: "More than half the days", Value: 2},
	{Text: "Nearly every day", Value: 3},
}

// PHQ9 is the depression questionnaire
var PHQ9 = &Instrument{
	ID:        "phq9",
	Mode:      entities.SessionModePHQ9,
	Condition: "depression",
	Questions: []Question{
		{ID: "phq1", Text: "Little interest or pleasure in doing things"},
		{ID: "phq2", Text: "Feeling down, depressed, or hopeless"},
		{ID: "phq3", Text: "Trouble falling or staying asleep, or sleeping too much"},
		{ID: "phq4", Text: "Feeling tired or having little energy"},
		{ID: "phq5", Text: "Poor appetite or overeating"},
		{ID: "phq6", Text: "Feeling bad about yourself—or that you are a failure or have let yourself or your family down"},
		{ID: "phq7", Text: "Trouble concentrating on things, such as reading the newspaper or watching television"},
		{ID: "phq8", Text: "Moving or speaking so slowly that other people could have noticed? Or the opposite—being so fidgety or restless that you have been moving around a lot more than usual"},
		{ID: "phq9", Text: "Thoughts that you would be better off dead or of hurting yourself in some way"},
	},
	SelfHarmItem: "phq9",
	thresholds: []threshold{
		{Max: 4, Band: BandMinimal},
		{Max: 9, Band: BandMild},
		{Max: 14, Band: BandModerate},
		{Max: 19, Band: BandModeratelySevere},
	},
	ceiling: BandSevere,
}

// GAD7 is the anxiety questionnaire
var GAD7 = &Instrument{
	ID:        "gad7",
	Mode:      entities.SessionModeGAD7,
	Condition: "anxiety",
	Questions: []Question{
		{ID: "gad1", Text: "Feeling nervous, anxious, or on edge"},
		{ID: "gad2", Text: "Not being able to stop or control worrying"},
		{ID: "gad3", Text: "Worrying too much about different things"},
		{ID: "gad4", Text: "Trouble relaxing"},
		{ID: "gad5", Text: "Being so restless that it's hard to sit still"},
		{ID: "gad6", Text: "Becoming easily annoyed or irritable"},
		{ID: "gad7", Text: "Feeling afraid, as if something awful might happen"},
	},
	thresholds: []threshold{
		{Max: 4, Band: BandMinimal},
		{Max: 9, Band: BandMild},
		{Max: 14, Band: BandModerate},
	},
	ceiling: BandSevere,
}

// ForMode returns the instrument for a screener mode
func ForMode(mode entities.SessionMode) (*Instrument, bool) {
	switch mode {
	case entities.SessionModePHQ9:
		return PHQ9, true
	case entities.SessionModeGAD7:
		return GAD7, true
	}
	return nil, false
}

// MaxScore is the highest achievable total
func (in *Instrument) MaxScore() int {
	return len(in.Questions) * MaxValue
}

// Band maps a total score to its severity band
func (in *Instrument) Band(total int) Band {
	for _, t := range in.thresholds {
		if total <= t.Max {
			return t.Band
		}
	}
	return in.ceiling
}

// Score sums the recorded answers for this instrument's items and returns the band
func (in *Instrument) Score(answers map[string]int) (int, Band) {
	total := 0
	for _, q := range in.Questions {
		total += answers[q.ID]
	}
	return total, in.Band(total)
}

// RequiresEscalation reports whether the self-harm item was answered with a non-zero value
func (in *Instrument) RequiresEscalation(answers map[string]int) bool {
	if in.SelfHarmItem == "" {
		return false
	}
	return answers[in.SelfHarmItem] != 0
}
