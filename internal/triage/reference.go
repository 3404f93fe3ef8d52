package triage

var referenceNodes = []Node{
	{
		ID:               "q1",
		Prompt:           "In the past month, have you wished you were dead or wished you could go to sleep and not wake up?",
		SuicidalIdeation: true,
		Next:             "q2",
	},
	{
		ID:               "q2",
		Prompt:           "In the past month, have you had any actual thoughts of killing yourself?",
		SuicidalIdeation: true,
		YesNext:          "q3",
		NoNext:           "branchEndIdeation",
	},
	{
		ID:     "q3",
		Prompt: "Have you been thinking about how you might do this (e.g., pills, gun)?",
		Next:   "q4",
	},
	{
		ID:     "q4",
		Prompt: "Have you had these thoughts and had some intention of acting on them?",
		Next:   "q5",
	},
	{
		ID:     "q5",
		Prompt: "Have you started to work out or worked out the details of how to kill yourself? (e.g., figured out the timing, location, or method)",
		Next:   "branchEndBehavior",
	},
	{
		ID:     "branchEndIdeation",
		Prompt: "Thank you for answering those. It's a sign of strength to be this open.",
		End:    true,
	},
	{
		ID:     "branchEndBehavior",
		Prompt: "Thank you. Now, I need to ask about any actions you may have taken. In your LIFETIME, have you ever done anything, started to do anything, or prepared to do anything to end your life?",
		Next:   "q6",
	},
	{
		ID:       "q6",
		Prompt:   "For example, have you collected pills, gotten a gun, given away things, written a note, or held a gun but changed your mind?",
		Behavior: true,
		Next:     "q7",
	},
	{
		ID:      "q7",
		Prompt:  "I really appreciate you walking through this with me. This is the last, very important question: Are you having any thoughts of killing yourself *right now*?",
		YesNext: "escalateImmediate",
		NoNext:  "escalateRecent",
	},
	{
		ID:         "escalateImmediate",
		Prompt:     "Thank you for telling me. Because you're having these thoughts right now, your safety is the most important thing. Help is available. You can connect with people who can support you by calling or texting 988 anytime in the US and Canada, or by calling 111 in the UK. Please reach out to them.",
		Escalation: true,
		End:        true,
	},
	{
		ID:         "escalateRecent",
		Prompt:     "Thank you for being so honest. It sounds like you are in a lot of pain. Because these thoughts and feelings are so recent and intense, it's really important to connect with someone who can help you stay safe. You can call or text 988 anytime (US/Canada) or 111 (UK) to talk to a trained counselor. They are there for you 24/7.",
		Escalation: true,
		End:        true,
	},
}

// Reference returns the built-in interview. It is shared by every session and never mutated.
func Reference() *Flow {
	return reference
}

var reference = mustFlow(EntryNode, referenceNodes)

func mustFlow(entry string, nodes []Node) *Flow {
	f, err := NewFlow(entry, nodes)
	if err != nil {
		panic(err)
	}
	return f
}
