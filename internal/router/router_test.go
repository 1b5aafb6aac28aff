package router

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Category
	}{
		{"daily schedule", "check the weather every morning", LongRunning},
		{"recurring phrasing", "periodically fetch my server status", LongRunning},
		{"deferred reminder", "remind me in 2 hours to stretch", LongRunning},
		{"cron phrasing", "run this on a cron at midnight", LongRunning},

		{"send action", "send a message to Ana about dinner", ToolTask},
		{"remember action", "remember that my flight is on Friday", ToolTask},
		{"messaging platform", "post this update to slack", ToolTask},
		{"plain reminder", "set a reminder for my dentist appointment", ToolTask},

		{"search phrasing", "search for the best ramen in Lisbon", ResearchTask},
		{"current events", "what is the latest news on the election", ResearchTask},
		{"lookup", "look up the price of ETH", ResearchTask},

		{"question mark", "capital of Mongolia?", SimpleQA},
		{"question word", "who wrote The Leopard", SimpleQA},
		{"auxiliary verb", "is a tomato a fruit", SimpleQA},
		{"empty input", "   ", SimpleQA},

		{"long open-ended", "compare the economic policies of the last three governments and argue which one best handled inflation, citing tradeoffs", ComplexReasoning},
		{"short statement", "summarize our conversation", ComplexReasoning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.input); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

// Scheduling intent must win even when tool and research phrasing are also
// present in the same input.
func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"every day, send a message to the team", LongRunning},
		{"search the news daily and email me a digest", LongRunning},
		{"remind me every monday to post the report", LongRunning},
		{"send me the latest news", ToolTask},
		{"search for something?", ResearchTask},
	}

	for _, tt := range tests {
		if got := Classify(tt.input); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestLooksLikeQuestionLengthCutoff(t *testing.T) {
	long := "could you please walk me through the entire history of the roman empire from its founding myth to the fall of constantinople in detail"
	if got := Classify(long); got != ComplexReasoning {
		t.Errorf("long interrogative input should default to COMPLEX_REASONING, got %s", got)
	}
}
