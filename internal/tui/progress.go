// Package tui renders live scraping progress in the terminal.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hellausefulsoftware/issuescout/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0087D7")).
			MarginBottom(1)

	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00AF87"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#D70000"))
)

var phaseLabels = map[string]string{
	"fetching":   "Searching issues",
	"details":    "Fetching comments",
	"analyzing":  "Analyzing relevance",
	"filtering":  "Filtering and ranking",
	"generating": "Generating report",
	"complete":   "Complete",
}

type progressMsg models.ScrapingProgress

type doneMsg struct {
	err error
}

type progressModel struct {
	title    string
	spinner  spinner.Model
	bar      progress.Model
	current  models.ScrapingProgress
	started  bool
	done     bool
	canceled bool
	err      error
}

func newProgressModel(title string) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return progressModel{
		title:   title,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Init initializes the progress screen
func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles progress and completion messages
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		m.current = models.ScrapingProgress(msg)
		m.started = true
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current phase, a progress bar and the latest message
func (m progressModel) View() string {
	view := titleStyle.Render(m.title) + "\n"

	if m.err != nil {
		view += errorStyle.Render("✗ scrape failed") + "\n"
		view += messageStyle.Render(m.err.Error()) + "\n"
		return view
	}

	if !m.started {
		view += fmt.Sprintf("%s starting...\n", m.spinner.View())
		return view
	}

	label := phaseLabels[m.current.Phase]
	if label == "" {
		label = m.current.Phase
	}

	if m.done {
		view += phaseStyle.Render("✓ "+label) + "\n"
	} else {
		view += fmt.Sprintf("%s %s\n", m.spinner.View(), phaseStyle.Render(label))
	}

	if m.current.Total > 0 {
		percent := float64(m.current.Current) / float64(m.current.Total)
		view += fmt.Sprintf("%s %d/%d\n", m.bar.ViewAs(percent), m.current.Current, m.current.Total)
	}

	if m.current.Message != "" {
		view += messageStyle.Render(m.current.Message) + "\n"
	}

	return view
}

// RunWithProgress executes run while displaying its progress events. The
// callback handed to run is safe to call from the pipeline goroutine; events
// are displayed in the order they are sent.
func RunWithProgress(title string, run func(onProgress func(models.ScrapingProgress)) error) error {
	p := tea.NewProgram(newProgressModel(title))

	go func() {
		err := run(func(pr models.ScrapingProgress) {
			p.Send(progressMsg(pr))
		})
		p.Send(doneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}

	m, ok := final.(progressModel)
	if !ok {
		return nil
	}
	if m.canceled {
		return fmt.Errorf("canceled by user")
	}
	return m.err
}
