// Package conversation implements the two-slot dialogue that drives the chat:
// the first user input names a food topic, the second names a calorie target,
// and the pair is folded into a single recommendation prompt for the model.
package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBlankInput is returned for empty or whitespace-only submissions. The
// machine's state is untouched when it is returned.
var ErrBlankInput = errors.New("input is blank")

// Step says which side of the two-slot dialogue a Result belongs to.
type Step int

const (
	// StepAskCalories means the topic slot was just filled; the caller should
	// surface a follow-up question referencing Result.Topic.
	StepAskCalories Step = iota

	// StepComposePrompt means both slots are filled; Result.Prompt carries the
	// composed text ready for the recommendation client.
	StepComposePrompt
)

// Result is the outcome of a single Submit call.
type Result struct {
	Step   Step
	Topic  string // topic slot, set for both steps
	Prompt string // composed prompt, set only for StepComposePrompt
}

// promptTemplate is the deterministic outbound prompt. It embeds the topic and
// the free-form calorie answer and pins the response shape the app renders:
// 3-5 recommendations, each with a heading, a rationale, an ingredient list
// and numbered preparation steps.
const promptTemplate = "Suggest between 3 and 5 %s dishes at roughly %s calories per serving. " +
	"For each dish give a short heading, one sentence on why it fits the calorie target, " +
	"a list of ingredients, and numbered preparation steps."

// Machine holds the conversation state. Exactly one instance exists per chat
// session and the owning session serializes all calls; Machine itself does no
// locking.
type Machine struct {
	awaitingCalorieInput bool
	currentTopic         string
}

// NewMachine returns a machine waiting for a food topic.
func NewMachine() *Machine {
	return &Machine{}
}

// Submit advances the dialogue by one user turn.
//
// Blank input is rejected with ErrBlankInput and changes nothing. Otherwise
// the machine alternates strictly: topic turn, calorie turn, topic turn, and
// so on. While the calorie answer is pending every input is treated as that
// answer; a new topic cannot be queued mid-exchange. The calorie text is
// accepted as-is; the model copes with "600", "about 500 kcal" and the like.
func (m *Machine) Submit(text string) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}, ErrBlankInput
	}

	if !m.awaitingCalorieInput {
		m.currentTopic = trimmed
		m.awaitingCalorieInput = true
		return Result{Step: StepAskCalories, Topic: m.currentTopic}, nil
	}

	m.awaitingCalorieInput = false
	return Result{
		Step:   StepComposePrompt,
		Topic:  m.currentTopic,
		Prompt: fmt.Sprintf(promptTemplate, m.currentTopic, trimmed),
	}, nil
}

// AwaitingCalorieInput reports whether the next submission is read as the
// calorie answer.
func (m *Machine) AwaitingCalorieInput() bool {
	return m.awaitingCalorieInput
}

// CurrentTopic returns the topic slot. Non-empty whenever
// AwaitingCalorieInput is true.
func (m *Machine) CurrentTopic() string {
	return m.currentTopic
}
