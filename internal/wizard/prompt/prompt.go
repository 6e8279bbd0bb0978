// Package prompt wraps charmbracelet/huh and charmbracelet/lipgloss into the
// small set of primitives the setup wizard needs: banners, headers, single
// validated text inputs, selects, and confirmations.
package prompt

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// PrintBanner prints the wizard's opening banner.
func PrintBanner(title, subtitle string) {
	fmt.Println(bannerStyle.Render(title))
	if subtitle != "" {
		fmt.Println(subtleStyle.Render(subtitle))
	}
}

// PrintHeader prints a step header with an optional one-line description.
func PrintHeader(title, description string) {
	fmt.Println()
	fmt.Println(headerStyle.Render(title))
	if description != "" {
		fmt.Println(description)
	}
	fmt.Println()
}

// PrintInfo prints an informational note.
func PrintInfo(msg string) {
	fmt.Println(infoStyle.Render("[INFO] " + msg))
}

// PrintWarning prints a non-fatal warning.
func PrintWarning(msg string) {
	fmt.Println(warningStyle.Render("[WARN] " + msg))
}

// ReadLine prompts for a single line of text, falling back to def when the
// user enters nothing.
func ReadLine(label, def string) (string, error) {
	return ReadLineValidated(label, def, nil)
}

// ReadLineValidated prompts for a single line of text and re-prompts until
// validate returns nil. A nil validate accepts anything.
func ReadLineValidated(label, def string, validate func(string) error) (string, error) {
	value := def
	input := huh.NewInput().
		Title(label).
		Value(&value)
	if validate != nil {
		input = input.Validate(validate)
	}
	if err := input.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return value, nil
}

// ReadSecret prompts for a single line of masked input (password, key
// material), with no default value echoed back.
func ReadSecret(label string) (string, error) {
	var value string
	if err := huh.NewInput().
		Title(label).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Run(); err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return value, nil
}

// Select presents a single-choice list and returns the chosen index.
func Select(label string, options []string, def int) (int, error) {
	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, i)
	}
	selected := def
	if selected < 0 || selected >= len(options) {
		selected = 0
	}
	if err := huh.NewSelect[int]().
		Title(label).
		Options(opts...).
		Value(&selected).
		Run(); err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return selected, nil
}

// Confirm asks a yes/no question.
func Confirm(label string, def bool) (bool, error) {
	value := def
	if err := huh.NewConfirm().
		Title(label).
		Value(&value).
		Run(); err != nil {
		return false, fmt.Errorf("%s: %w", label, err)
	}
	return value, nil
}
