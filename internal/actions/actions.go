// ABOUTME: Human-in-the-loop actions an agent can invoke mid-task
// ABOUTME: Ask, confirm, select, and notify, phrased as agent transcript lines

package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Bridge is the slice of the UI bridge the actions need.
type Bridge interface {
	RequestInput(ctx context.Context, prompt string, options []string) (string, error)
	Notify(title, message, level string) error
}

// Result is what an action hands the agent loop: a transcript line
// describing what the user did, and whether it belongs in working memory.
type Result struct {
	Content  string
	Remember bool
}

// Actions exposes the user-interaction tools. All of them block on the
// person at the UI, so callers should pass a context they are willing to
// wait on.
type Actions struct {
	bridge Bridge
	logger *slog.Logger
}

// New wires the actions to a UI bridge.
func New(bridge Bridge, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		bridge: bridge,
		logger: logger.With("component", "actions"),
	}
}

// AskUser puts a free-form question to the person and waits for the answer.
func (a *Actions) AskUser(ctx context.Context, question string) (Result, error) {
	answer, err := a.bridge.RequestInput(ctx, question, nil)
	if err != nil {
		return Result{}, fmt.Errorf("ask user: %w", err)
	}

	a.logger.Info("user answered question", "question", question)
	return Result{
		Content:  fmt.Sprintf("User answered: %s", answer),
		Remember: true,
	}, nil
}

// ConfirmAction asks for a yes/no decision before something irreversible.
// Any casing of "yes" confirms; everything else declines.
func (a *Actions) ConfirmAction(ctx context.Context, action, details string) (bool, Result, error) {
	prompt := fmt.Sprintf("Please confirm: %s", action)
	if details != "" {
		prompt += fmt.Sprintf("\n\nDetails: %s", details)
	}

	answer, err := a.bridge.RequestInput(ctx, prompt, []string{"Yes", "No"})
	if err != nil {
		return false, Result{}, fmt.Errorf("confirm action: %w", err)
	}

	confirmed := strings.EqualFold(strings.TrimSpace(answer), "yes")
	content := "User declined the action"
	if confirmed {
		content = "User confirmed the action"
	}

	a.logger.Info("user decided", "action", action, "confirmed", confirmed)
	return confirmed, Result{Content: content, Remember: true}, nil
}

// SelectOption has the person pick one of the offered options.
func (a *Actions) SelectOption(ctx context.Context, prompt string, options []string) (Result, error) {
	if len(options) == 0 {
		return Result{}, fmt.Errorf("select option: no options offered")
	}

	selected, err := a.bridge.RequestInput(ctx, prompt, options)
	if err != nil {
		return Result{}, fmt.Errorf("select option: %w", err)
	}

	a.logger.Info("user selected option", "prompt", prompt, "selected", selected)
	return Result{
		Content:  fmt.Sprintf("User selected: %s", selected),
		Remember: true,
	}, nil
}

// NotifyUser pushes a one-way notification. Nothing comes back, so the
// result is not worth remembering.
func (a *Actions) NotifyUser(title, message, level string) (Result, error) {
	if err := a.bridge.Notify(title, message, level); err != nil {
		return Result{}, fmt.Errorf("notify user: %w", err)
	}
	return Result{
		Content:  fmt.Sprintf("Notified user: %s", title),
		Remember: false,
	}, nil
}
