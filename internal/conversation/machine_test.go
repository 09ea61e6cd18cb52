package conversation

import (
	"errors"
	"strings"
	"testing"
)

func TestSubmitAlternatesStrictly(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	inputs := []string{"pasta", "600", "salad", "about 450 kcal", "soup", "300"}
	for i, in := range inputs {
		res, err := m.Submit(in)
		if err != nil {
			t.Fatalf("Submit(%q): %v", in, err)
		}
		wantCalories := i%2 == 1
		if wantCalories && res.Step != StepComposePrompt {
			t.Fatalf("turn %d (%q): expected StepComposePrompt, got %v", i, in, res.Step)
		}
		if !wantCalories && res.Step != StepAskCalories {
			t.Fatalf("turn %d (%q): expected StepAskCalories, got %v", i, in, res.Step)
		}
	}
}

func TestSubmitTopicThenCalories(t *testing.T) {
	t.Parallel()

	m := NewMachine()

	res, err := m.Submit("pasta")
	if err != nil {
		t.Fatalf("Submit(pasta): %v", err)
	}
	if res.Step != StepAskCalories || res.Topic != "pasta" {
		t.Fatalf("expected AskCalories(pasta), got step=%v topic=%q", res.Step, res.Topic)
	}
	if !m.AwaitingCalorieInput() {
		t.Fatalf("machine should await calorie input after the topic turn")
	}

	res, err = m.Submit("600")
	if err != nil {
		t.Fatalf("Submit(600): %v", err)
	}
	if res.Step != StepComposePrompt {
		t.Fatalf("expected ComposePrompt, got %v", res.Step)
	}
	if !strings.Contains(res.Prompt, "pasta") || !strings.Contains(res.Prompt, "600") {
		t.Fatalf("prompt must embed both slots, got %q", res.Prompt)
	}
	if m.AwaitingCalorieInput() {
		t.Fatalf("machine should be back to the topic turn after composing")
	}
}

func TestSubmitBlankInputChangesNothing(t *testing.T) {
	t.Parallel()

	cases := []string{"", "   ", "\t", "\n  \t"}
	for _, in := range cases {
		m := NewMachine()
		if _, err := m.Submit("pasta"); err != nil {
			t.Fatalf("setup: %v", err)
		}

		_, err := m.Submit(in)
		if !errors.Is(err, ErrBlankInput) {
			t.Fatalf("Submit(%q): expected ErrBlankInput, got %v", in, err)
		}
		if !m.AwaitingCalorieInput() || m.CurrentTopic() != "pasta" {
			t.Fatalf("blank input must not change state (awaiting=%v topic=%q)",
				m.AwaitingCalorieInput(), m.CurrentTopic())
		}
	}
}

func TestSubmitWhileAwaitingCaloriesNeverStartsNewTopic(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	if _, err := m.Submit("pasta"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Even text that looks like a new topic is read as the calorie answer.
	res, err := m.Submit("pizza instead")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Step != StepComposePrompt {
		t.Fatalf("expected ComposePrompt, got %v", res.Step)
	}
	if res.Topic != "pasta" {
		t.Fatalf("topic slot must keep the original topic, got %q", res.Topic)
	}
	if !strings.Contains(res.Prompt, "pizza instead") {
		t.Fatalf("the second input should appear as the calorie text, got %q", res.Prompt)
	}
}

func TestSubmitTrimsSlotValues(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	res, err := m.Submit("  pasta  ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Topic != "pasta" {
		t.Fatalf("topic should be trimmed, got %q", res.Topic)
	}
}

func TestPromptPinsRecommendationShape(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	m.Submit("ramen")
	res, err := m.Submit("550")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, want := range []string{"3 and 5", "heading", "ingredients", "numbered preparation steps"} {
		if !strings.Contains(res.Prompt, want) {
			t.Fatalf("prompt missing %q: %q", want, res.Prompt)
		}
	}
}

func TestPromptIsDeterministic(t *testing.T) {
	t.Parallel()

	composed := func() string {
		m := NewMachine()
		m.Submit("tacos")
		res, _ := m.Submit("700")
		return res.Prompt
	}
	if composed() != composed() {
		t.Fatalf("identical slots must compose identical prompts")
	}
}
