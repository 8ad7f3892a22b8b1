package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelworks/retract/internal/review"
)

// ReviewPrompter answers the review flow from an interactive terminal.
// It renders each candidate page to stderr and asks what to do with it.
type ReviewPrompter struct {
	// TargetName labels the pages, e.g. "script".
	TargetName string
}

var _ review.Prompter = (*ReviewPrompter)(nil)

// Review shows one page of candidates and collects a decision.
func (r *ReviewPrompter) Review(page []review.Candidate, reviewed, total int) (review.Decision, error) {
	fmt.Fprintf(os.Stderr, "\n%s\n", headerStyle.Render(
		fmt.Sprintf("── %s: candidates %d–%d of %d ──", r.TargetName, page[0].Ordinal, page[len(page)-1].Ordinal, total)))
	for _, c := range page {
		fmt.Fprintln(os.Stderr, CandidateLine(c.Line+1, c.Text))
	}
	fmt.Fprintln(os.Stderr)

	m := reviewChoiceModel{remaining: total - reviewed}
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return review.Stop, err
	}
	fmt.Fprintln(os.Stderr) // newline after prompt
	return result.(reviewChoiceModel).decision, nil
}

// Pick reads a range specification over candidate ordinals.
func (r *ReviewPrompter) Pick(total int) (string, error) {
	fmt.Fprintf(os.Stderr, "%s ", promptStyle.Render(
		fmt.Sprintf("Candidates to delete (1-%d, e.g. 1,3-5; empty keeps none):", total)))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// reviewChoiceModel is a bubbletea model for the per-page
// all/next/pick/stop question.
type reviewChoiceModel struct {
	remaining int
	cursor    int // 0 = all, 1 = next, 2 = pick, 3 = stop
	decision  review.Decision
}

func (m reviewChoiceModel) Init() tea.Cmd { return nil }

func (m reviewChoiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "a", "A", "y", "Y":
			m.decision = review.All
			return m, tea.Quit
		case "n", "N":
			m.decision = review.Next
			return m, tea.Quit
		case "p", "P":
			m.decision = review.Pick
			return m, tea.Quit
		case "q", "Q", "s", "S":
			m.decision = review.Stop
			return m, tea.Quit
		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < 3 {
				m.cursor++
			}
		case "enter", " ":
			m.decision = [4]review.Decision{review.All, review.Next, review.Pick, review.Stop}[m.cursor]
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.decision = review.Stop
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m reviewChoiceModel) View() string {
	options := []string{"  All  ", "  Next  ", "  Pick  ", "  Stop  "}
	styles := []lipgloss.Style{successStyle, promptStyle, promptStyle, errorStyle}

	for i := range options {
		if i == m.cursor {
			options[i] = styles[i].Render(fmt.Sprintf("▸%s", strings.TrimPrefix(options[i], "  ")))
		} else {
			options[i] = dimStyle.Render(options[i])
		}
	}

	prompt := "Delete all shown and remaining candidates?"
	if m.remaining == 0 {
		prompt = "Delete the candidates shown?"
	}

	return fmt.Sprintf("%s\n\n  %s  %s  %s  %s\n\n%s",
		promptStyle.Render(prompt),
		options[0], options[1], options[2], options[3],
		dimStyle.Render("  ←/→ to select • enter to confirm • a/n/p/q for quick select"))
}
