package commands

import (
	"context"

	"github.com/charmbracelet/huh"
)

// promptConfirmer asks through an interactive terminal prompt.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(_ context.Context, title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// autoConfirmer approves every prompt. Used with --yes.
type autoConfirmer struct{}

func (autoConfirmer) Confirm(context.Context, string, string) (bool, error) {
	return true, nil
}
