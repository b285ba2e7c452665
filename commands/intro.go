package commands

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/m3rciful/stagebot/core/conversation"
)

// IntroState is what /intro collects.
type IntroState struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

var digits = regexp.MustCompile(`\d+`)

// Intro asks for a name, then an age, then greets the user.
func Intro() *conversation.Command[IntroState] {
	return &conversation.Command[IntroState]{
		Name:         "intro",
		Description:  "Introduce yourself",
		InitialState: IntroState{Age: -1},
		Stages: []conversation.Stage[IntroState]{
			conversation.OnCommand(askName),
			conversation.OnText(conversation.TextFunc(hasText), askAge),
			conversation.OnText(conversation.TextPattern(digits), greet),
		},
	}
}

// hasText rejects messages without text, such as photos or stickers.
func hasText(text string) bool {
	return strings.TrimSpace(text) != ""
}

func askName(context.Context, conversation.Event, IntroState) (*conversation.Result[IntroState], error) {
	return conversation.Reply[IntroState](conversation.Text("What is your name?")), nil
}

func askAge(_ context.Context, ev conversation.Event, s IntroState) (*conversation.Result[IntroState], error) {
	s.Name = strings.TrimSpace(ev.Text)
	return &conversation.Result[IntroState]{
		Responses: []conversation.Response{conversation.Text("I see, what is your age?")},
		NextState: &s,
	}, nil
}

func greet(_ context.Context, ev conversation.Event, s IntroState) (*conversation.Result[IntroState], error) {
	age, err := strconv.Atoi(digits.FindString(ev.Text))
	if err != nil {
		// Out of int range; ask again.
		return nil, nil
	}
	s.Age = age
	return &conversation.Result[IntroState]{
		Responses: []conversation.Response{conversation.Text(fmt.Sprintf("Hi %s of age %d!", s.Name, s.Age))},
		NextState: &s,
	}, nil
}
