package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shiftwatch/internal/engine"
	depdto "shiftwatch/internal/modules/departure/dto"
	shiftdto "shiftwatch/internal/modules/shift/dto"
	watchdto "shiftwatch/internal/modules/watch/dto"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/ui/components"
	"shiftwatch/internal/ui/theme"
)

// Terminals report a held key as a stream of repeats. A gap longer than
// releaseGrace between repeats counts as the key being let go.
const releaseGrace = 600 * time.Millisecond

const (
	departureIdle       = "IDLE"
	departureCollecting = "COLLECTING"
	departureSubmitting = "SUBMITTING"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type enginePort interface {
	Snapshot(ctx context.Context, now time.Time) (engine.Snapshot, error)
	Subscribe(ctx context.Context, topics ...engine.Topic) <-chan engine.Event
	StartShift(ctx context.Context) (shiftdto.StartOutput, error)
	BeginBreak(ctx context.Context, kind string) (watchdto.StatusOutput, error)
	Arm(g engine.Gesture, now time.Time)
	Release(g engine.Gesture)
	Sample(g engine.Gesture, now time.Time) float64
	UpdateDraft(ctx context.Context, reason, statement string) (depdto.StateOutput, error)
	SetEmergency(ctx context.Context, on bool) (depdto.StateOutput, error)
	SubmitDeparture(ctx context.Context) (engine.SubmitResult, error)
	CancelDeparture(ctx context.Context) (depdto.StateOutput, error)
}

// ─── async messages ───────────────────────────────────────────────────────────

type eventMsg struct {
	ev engine.Event
	ok bool
}

type snapshotMsg struct {
	snap engine.Snapshot
	err  error
}

type frameMsg time.Time

type actionMsg struct {
	status string
	err    error
}

type draftMsg struct {
	state depdto.StateOutput
	err   error
}

type submitMsg struct {
	res engine.SubmitResult
	err error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Start  key.Binding
	End    key.Binding
	Break  key.Binding
	Galley key.Binding
	Resume key.Binding
	SOS    key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start shift")),
		End:    key.NewBinding(key.WithKeys("e"), key.WithHelp("hold e", "end shift")),
		Break:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "shore leave")),
		Galley: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "galley")),
		Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("hold r", "resume")),
		SOS:    key.NewBinding(key.WithKeys("!"), key.WithHelp("hold !", "sos")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.End, k.Break, k.Resume, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.End},
		{k.Break, k.Galley, k.Resume},
		{k.SOS, k.Help, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the watch screen. It renders engine snapshots and turns held keys
// into latch presses; every decision is left to the engine.
type Model struct {
	ctx    context.Context
	engine enginePort
	events <-chan engine.Event
	now    func() time.Time

	snap     engine.Snapshot
	hasSnap  bool
	held     engine.Gesture
	lastKey  time.Time
	progress float64

	keys     keyMap
	help     help.Model
	showHelp bool
	bar      progress.Model
	form     components.Manifest
	status   string
	width    int
	height   int
}

func NewModel(ctx context.Context, eng enginePort) Model {
	return Model{
		ctx:    ctx,
		engine: eng,
		events: eng.Subscribe(ctx, engine.TopicEngine, engine.TopicSessions, engine.TopicAudit),
		now:    func() time.Time { return time.Now().UTC() },
		keys:   defaultKeys(),
		help:   help.New(),
		bar:    progress.New(progress.WithGradient(string(theme.Peach), string(theme.Red)), progress.WithoutPercentage()),
		form:   components.NewManifest(),
		status: "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.snapshotCmd(), m.waitEventCmd())
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.bar.Width = max(10, min(msg.Width-8, 60))
		m.form.SetWidth(min(msg.Width-4, 80))
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		return m.applySnapshot(msg.snap)

	case eventMsg:
		if !msg.ok {
			return m, nil
		}
		next := m.waitEventCmd()
		model, cmd := m.applyEvent(msg.ev)
		return model, tea.Batch(cmd, next)

	case frameMsg:
		return m.frame(time.Time(msg))

	case actionMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.status
		}
		return m, m.snapshotCmd()

	case draftMsg:
		if msg.err != nil {
			m.status = "manifest: " + msg.err.Error()
			return m, nil
		}
		m.form.Sync(msg.state)
		return m, nil

	case submitMsg:
		return m.submitted(msg)

	case components.ManifestChangedMsg:
		return m, m.draftCmd(msg.Reason, msg.Statement)
	case components.ManifestEmergencyMsg:
		return m, m.emergencyCmd(msg.On)
	case components.ManifestSubmitMsg:
		return m, m.submitCmd()
	case components.ManifestCancelMsg:
		m.form.Close()
		return m, m.cancelCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.releaseHeld()
		return m, tea.Quit
	}
	if m.form.Visible() {
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		return m, cmd
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.releaseHeld()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Start):
		return m, m.actionCmd(func(ctx context.Context) (string, error) {
			out, err := m.engine.StartShift(ctx)
			return "shift started " + out.SessionID, err
		})
	case key.Matches(msg, m.keys.Break):
		return m, m.breakCmd("SHORE_LEAVE")
	case key.Matches(msg, m.keys.Galley):
		return m, m.breakCmd("GALLEY")
	case key.Matches(msg, m.keys.End):
		return m.press(engine.GestureEndShift)
	case key.Matches(msg, m.keys.Resume):
		return m.press(engine.GestureResume)
	case key.Matches(msg, m.keys.SOS):
		return m.press(engine.GestureSOS)
	}
	return m, nil
}

// press arms g on the first key event and refreshes the grace window on
// every repeat.
func (m Model) press(g engine.Gesture) (tea.Model, tea.Cmd) {
	now := m.now()
	m.lastKey = now
	if m.held == g {
		return m, nil
	}
	m.releaseHeld()
	m.held = g
	m.progress = 0
	m.engine.Arm(g, now)
	return m, frameCmd()
}

func (m Model) frame(now time.Time) (tea.Model, tea.Cmd) {
	if m.held == "" {
		return m, nil
	}
	if now.Sub(m.lastKey) > releaseGrace {
		m.status = fmt.Sprintf("%s released", m.held)
		m.releaseHeld()
		return m, nil
	}
	m.progress = m.engine.Sample(m.held, now)
	if m.progress >= 1 {
		m.status = fmt.Sprintf("%s confirmed", m.held)
		m.held = ""
		m.progress = 0
		return m, nil
	}
	return m, frameCmd()
}

func (m *Model) releaseHeld() {
	if m.held == "" {
		return
	}
	m.engine.Release(m.held)
	m.held = ""
	m.progress = 0
}

func (m Model) applySnapshot(snap engine.Snapshot) (tea.Model, tea.Cmd) {
	m.snap = snap
	m.hasSnap = true
	// A submitting departure stays on screen so enter can retry it.
	pending := snap.Departure.State == departureCollecting || snap.Departure.State == departureSubmitting
	if pending && !m.form.Visible() {
		cmd := m.form.Open()
		m.form.Sync(snap.Departure)
		return m, cmd
	}
	if snap.Departure.State == departureIdle && m.form.Visible() {
		m.form.Close()
	}
	return m, nil
}

func (m Model) applyEvent(ev engine.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case engine.EventTick:
		if ev.Snapshot != nil {
			return m.applySnapshot(*ev.Snapshot)
		}
	case engine.EventGestureDone:
		if ev.Gesture == m.held {
			m.held = ""
			m.progress = 0
		}
		if ev.Err != nil {
			m.status = fmt.Sprintf("%s failed: %v", ev.Gesture, ev.Err)
		} else {
			m.status = describeResult(ev.Result)
		}
		return m, m.snapshotCmd()
	case engine.EventShiftClosed:
		if ev.Closed != nil {
			m.status = fmt.Sprintf("shift closed, earned %.2f", ev.Closed.Earnings)
		}
		return m, m.snapshotCmd()
	case engine.EventAuditAppended:
		if ev.Audit != nil {
			m.status = "logged " + ev.Audit.Kind
		}
	case engine.EventDeparture, engine.EventBreak, engine.EventShiftStarted:
		return m, m.snapshotCmd()
	case engine.EventError:
		if ev.Err != nil {
			m.status = "engine: " + ev.Err.Error()
		}
	}
	return m, nil
}

func (m Model) submitted(msg submitMsg) (tea.Model, tea.Cmd) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(msg.err, &verr):
		m.form.Sync(msg.res.Submit.State)
		m.status = "manifest incomplete"
		return m, nil
	case apperrors.IsRetryable(msg.err):
		m.status = "could not record departure, press enter to retry"
		return m, nil
	case msg.err != nil:
		m.status = "departure: " + msg.err.Error()
		return m, nil
	}
	m.form.Close()
	if msg.res.Closed != nil {
		m.status = fmt.Sprintf("departure logged, earned %.2f", msg.res.Closed.Earnings)
	}
	return m, m.snapshotCmd()
}

func describeResult(res *engine.GestureResult) string {
	switch {
	case res == nil:
		return "done"
	case res.Departure != nil && res.Departure.ManifestRequired:
		return "early departure: fill in the manifest"
	case res.Departure != nil:
		return "shift closed"
	case res.Resume != nil:
		return "welcome back: " + res.Resume.Details
	case res.SOS != nil:
		return "SOS beacon logged"
	}
	return "done"
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(theme.Title.Render("shiftwatch")) + "\n"
	var body string
	switch {
	case m.showHelp:
		full := m.help
		full.ShowAll = true
		body = full.View(m.keys)
	case m.form.Visible():
		body = m.form.View()
	default:
		body = m.renderWatch()
	}
	if m.held != "" {
		body += "\n\n" + theme.Hot.Render(fmt.Sprintf("holding %s ", m.held)) + m.bar.ViewAs(m.progress)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusBar())
}

func (m Model) renderWatch() string {
	if !m.hasSnap {
		return theme.Muted.Render("loading…")
	}
	st := m.snap.Shift
	if !st.Open {
		return theme.Pane.Render(theme.Muted.Render("off watch") + "\n\n" + m.help.View(m.keys))
	}
	lines := []string{
		fmt.Sprintf("session   %s", st.SessionID),
		fmt.Sprintf("elapsed   %s / %s", clock(st.Elapsed), clock(st.ShiftDuration)),
		fmt.Sprintf("earnings  %.2f", st.Earnings),
	}
	pane := theme.Pane
	if st.Overtime {
		lines = append(lines, theme.Alert.Render("OVERTIME"))
		pane = theme.PaneOvertime
	} else {
		lines = append(lines, fmt.Sprintf("remaining %s", clock(st.Remaining)))
	}
	if b := m.snap.Break; b.OnBreak {
		lines = append(lines, "", theme.Hot.Render(b.Kind)+fmt.Sprintf("  back in %s", clock(b.Remaining)))
	}
	return pane.Render(strings.Join(lines, "\n")) + "\n" + m.help.View(m.keys)
}

func (m Model) renderStatusBar() string {
	left := m.status
	if m.hasSnap && m.snap.Shift.Open {
		left = theme.Good.Render("● on watch") + "  " + left
	}
	right := theme.Muted.Render("?:help  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", d/time.Hour, (d%time.Hour)/time.Minute, (d%time.Minute)/time.Second)
}

// ─── async commands ───────────────────────────────────────────────────────────

func frameCmd() tea.Cmd {
	return tea.Tick(engine.HoldTick, func(t time.Time) tea.Msg { return frameMsg(t.UTC()) })
}

func (m Model) waitEventCmd() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{ev: ev, ok: ok}
	}
}

func (m Model) snapshotCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.engine.Snapshot(m.ctx, m.now())
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) actionCmd(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn(m.ctx)
		return actionMsg{status: status, err: err}
	}
}

func (m Model) breakCmd(kind string) tea.Cmd {
	return m.actionCmd(func(ctx context.Context) (string, error) {
		out, err := m.engine.BeginBreak(ctx, kind)
		return fmt.Sprintf("%s until %s", out.Kind, out.EstimatedReturn.Local().Format("15:04")), err
	})
}

func (m Model) draftCmd(reason, statement string) tea.Cmd {
	return func() tea.Msg {
		state, err := m.engine.UpdateDraft(m.ctx, reason, statement)
		return draftMsg{state: state, err: err}
	}
}

func (m Model) emergencyCmd(on bool) tea.Cmd {
	return func() tea.Msg {
		state, err := m.engine.SetEmergency(m.ctx, on)
		return draftMsg{state: state, err: err}
	}
}

func (m Model) submitCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.engine.SubmitDeparture(m.ctx)
		return submitMsg{res: res, err: err}
	}
}

func (m Model) cancelCmd() tea.Cmd {
	return m.actionCmd(func(ctx context.Context) (string, error) {
		_, err := m.engine.CancelDeparture(ctx)
		return "departure cancelled", err
	})
}

// Run blocks until the user quits.
func Run(ctx context.Context, eng enginePort) error {
	program := tea.NewProgram(NewModel(ctx, eng), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
