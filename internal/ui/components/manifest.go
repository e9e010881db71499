package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	depdto "shiftwatch/internal/modules/departure/dto"
	"shiftwatch/internal/ui/theme"
)

// ManifestChangedMsg is emitted whenever the reason or statement changes.
type ManifestChangedMsg struct {
	Reason    string
	Statement string
}

// ManifestSubmitMsg is emitted on enter.
type ManifestSubmitMsg struct{}

// ManifestCancelMsg is emitted on esc.
type ManifestCancelMsg struct{}

// ManifestEmergencyMsg is emitted on ctrl+e with the requested state.
type ManifestEmergencyMsg struct{ On bool }

var (
	formStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Peach).
			Background(theme.Mantle).
			Foreground(theme.Text).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().Foreground(theme.Subtext0)
)

// reasons must stay in the order of the departure reason codes.
var reasons = []string{"MEDICAL", "TECHNICAL", "PERSONAL", "COMPLETED_EARLY", "EMERGENCY", "OTHER"}

// Manifest is the early-departure form backed by bubbles/textinput. It only
// edits local fields; the engine owns the draft and is told about every
// change through ManifestChangedMsg.
type Manifest struct {
	input     textinput.Model
	reason    int
	emergency bool
	problems  []string
	visible   bool
	width     int
}

func NewManifest() Manifest {
	ti := textinput.New()
	ti.Placeholder = "why are you leaving early?"
	ti.CharLimit = 512
	return Manifest{input: ti, reason: -1}
}

func (f Manifest) Visible() bool { return f.visible }

// Open shows an empty form and returns the focus command.
func (f *Manifest) Open() tea.Cmd {
	f.visible = true
	f.reason = -1
	f.emergency = false
	f.problems = nil
	f.input.SetValue("")
	return f.input.Focus()
}

func (f *Manifest) Close() {
	f.visible = false
	f.input.Blur()
}

// Sync mirrors the engine's view of the draft.
func (f *Manifest) Sync(state depdto.StateOutput) {
	f.emergency = state.IsEmergency
	f.problems = state.Problems
	f.reason = -1
	for i, r := range reasons {
		if r == state.Reason {
			f.reason = i
		}
	}
	if state.Statement != f.input.Value() {
		f.input.SetValue(state.Statement)
	}
}

func (f *Manifest) SetWidth(w int) { f.width = w }

func (f Manifest) Update(msg tea.Msg) (Manifest, tea.Cmd) {
	if !f.visible {
		return f, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return f, func() tea.Msg { return ManifestCancelMsg{} }
		case "enter":
			return f, func() tea.Msg { return ManifestSubmitMsg{} }
		case "ctrl+e":
			on := !f.emergency
			return f, func() tea.Msg { return ManifestEmergencyMsg{On: on} }
		case "up", "down":
			if f.emergency {
				return f, nil
			}
			step := 1
			if msg.String() == "up" {
				step = len(reasons) - 1
			}
			f.reason = (f.reason + step + len(reasons)) % len(reasons)
			return f, f.changed()
		}
	}
	if f.emergency {
		return f, nil
	}
	before := f.input.Value()
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	if f.input.Value() != before {
		return f, tea.Batch(cmd, f.changed())
	}
	return f, cmd
}

func (f Manifest) changed() tea.Cmd {
	reason := ""
	if f.reason >= 0 {
		reason = reasons[f.reason]
	}
	statement := f.input.Value()
	return func() tea.Msg { return ManifestChangedMsg{Reason: reason, Statement: statement} }
}

func (f Manifest) View() string {
	if !f.visible {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Departure manifest") + "\n\n")
	for i, r := range reasons {
		marker := "  "
		line := r
		if i == f.reason {
			marker = "> "
			line = theme.Hot.Render(r)
		}
		sb.WriteString(marker + line + "\n")
	}
	sb.WriteString("\nstatement: " + f.input.View() + "\n")
	if f.emergency {
		sb.WriteString("\n" + theme.Alert.Render("EMERGENCY: manifest bypassed") + "\n")
	}
	if len(f.problems) > 0 {
		sb.WriteString("\n" + theme.Alert.Render("missing: "+strings.Join(f.problems, ", ")) + "\n")
	}
	sb.WriteString("\n" + hintStyle.Render("↑/↓ reason  enter submit  ctrl+e emergency  esc cancel"))

	w := f.width
	if w < 20 {
		w = 64
	}
	return formStyle.Width(w - 2).Render(sb.String())
}
