package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/reliability"
	"github.com/ent0n29/pagechat/internal/transcript"
)

// TurnRenderer renders one transcript turn for the terminal.
type TurnRenderer interface {
	Turn(t transcript.Transcript, i int) (string, error)
}

// feed coalesces conversation snapshots into a single-slot channel so a
// slow UI only ever sees the newest one.
type feed struct {
	mu   sync.Mutex
	last uint64
	ch   chan conversation.Snapshot
}

func newFeed() *feed {
	return &feed{ch: make(chan conversation.Snapshot, 1)}
}

func (f *feed) push(snap conversation.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap.Seq < f.last {
		return
	}
	f.last = snap.Seq
	select {
	case <-f.ch:
	default:
	}
	f.ch <- snap
}

// Options configure the chat model.
type Options struct {
	URL       string
	Renderer  TurnRenderer
	SpeechDir string
}

// Model is the root bubbletea model for the interactive chat.
type Model struct {
	conv      *conversation.Session
	renderer  TurnRenderer
	feed      *feed
	url       string
	speechDir string

	// Conversation
	snap     conversation.Snapshot
	rendered []string
	selected int

	// Input
	asking bool
	input  string

	// UI state
	width    int
	height   int
	scroll   int
	live     bool
	quitting bool

	// Notices
	errorMessage string
	notice       string
}

// New subscribes to conv and returns the model. The returned func
// unsubscribes.
func New(conv *conversation.Session, opts Options) (Model, func()) {
	f := newFeed()
	unsubscribe := conv.Subscribe(f.push)
	speechDir := opts.SpeechDir
	if speechDir == "" {
		speechDir = "."
	}
	m := Model{
		conv:      conv,
		renderer:  opts.Renderer,
		feed:      f,
		url:       opts.URL,
		speechDir: speechDir,
		snap:      conv.Snapshot(),
		selected:  -1,
		live:      true,
	}
	m.rerender()
	return m, unsubscribe
}

// Init loads the page and any saved transcript.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.feed), opCmd(conversation.OpFetch, func(ctx context.Context) error {
		_, err := m.conv.FetchContent(ctx)
		return err
	}))
}

func waitForSnapshot(f *feed) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: <-f.ch}
	}
}

// opCmd runs a conversation operation off the UI goroutine. Cancellation
// goes through Session.Cancel, so the context is never cancelled here.
func opCmd(op conversation.Op, run func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return OpDoneMsg{Op: op, Err: run(context.Background())}
	}
}

func speakCmd(conv *conversation.Session, index int, dir string) tea.Cmd {
	return func() tea.Msg {
		speech, err := conv.Speak(context.Background(), index)
		if err != nil {
			return SpeechSavedMsg{Err: err}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return SpeechSavedMsg{Err: fmt.Errorf("create speech directory: %w", err)}
		}
		path := filepath.Join(dir, speech.Filename)
		if err := os.WriteFile(path, speech.Audio, 0o644); err != nil {
			return SpeechSavedMsg{Err: fmt.Errorf("write speech: %w", err)}
		}
		return SpeechSavedMsg{Path: path}
	}
}

func clearTransientCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		if msg.Snapshot.Seq >= m.snap.Seq {
			m.snap = msg.Snapshot
			m.rerender()
			if m.selected >= len(m.snap.Transcript) {
				m.selected = len(m.snap.Transcript) - 1
			}
			if m.live {
				m.scroll = m.maxScroll()
			}
		}
		return m, waitForSnapshot(m.feed)

	case OpDoneMsg:
		if msg.Err == nil {
			m.errorMessage = ""
			if msg.Op == conversation.OpSummarize || msg.Op == conversation.OpAsk || msg.Op == conversation.OpRegenerate {
				m.selected = m.snap.Transcript.LastAssistant()
			}
			return m, nil
		}
		c := reliability.Classify(msg.Err)
		if c.Abort {
			return m, nil
		}
		m.errorMessage = c.Message
		return m, nil

	case SpeechSavedMsg:
		if msg.Err != nil {
			m.errorMessage = reliability.Classify(msg.Err).Message
			return m, nil
		}
		m.notice = "Saved " + msg.Path
		return m, clearTransientCmd()

	case ClearTransientMsg:
		m.notice = ""
		return m, nil
	}

	return m, nil
}

func (m Model) busy() bool {
	return m.snap.State != conversation.StateIdle
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		m.conv.Cancel()
		m.quitting = true
		return m, tea.Quit
	}
	if m.asking {
		return m.handleInputKey(msg)
	}

	switch key {
	case KeyQuit:
		m.conv.Cancel()
		m.quitting = true
		return m, tea.Quit

	case KeyStop:
		m.conv.Cancel()
		return m, nil

	case KeySummarize:
		m.errorMessage = ""
		return m, opCmd(conversation.OpSummarize, func(ctx context.Context) error {
			_, err := m.conv.Summarize(ctx)
			return err
		})

	case KeyAsk, KeyAskAlt:
		m.asking = true
		m.input = ""
		return m, nil

	case KeyRegenerate:
		if m.selected < 0 {
			return m, nil
		}
		index := m.selected
		m.errorMessage = ""
		return m, opCmd(conversation.OpRegenerate, func(ctx context.Context) error {
			_, err := m.conv.Regenerate(ctx, index)
			return err
		})

	case KeyClear:
		m.errorMessage = ""
		m.selected = -1
		return m, opCmd(conversation.OpClear, m.conv.Clear)

	case KeySpeak:
		index := m.selected
		if index < 0 {
			index = m.snap.Transcript.LastAssistant()
		}
		m.notice = "Synthesizing speech…"
		return m, speakCmd(m.conv, index, m.speechDir)

	case KeyNext:
		if m.selected < len(m.snap.Transcript)-1 {
			m.selected++
		}
		return m, nil

	case KeyPrev:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyUp:
		m.live = false
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case KeyDown:
		m.scroll++
		if limit := m.maxScroll(); m.scroll >= limit {
			m.scroll = limit
			m.live = true
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.asking = false
		m.input = ""
		return m, nil
	case tea.KeyEnter:
		question := strings.TrimSpace(m.input)
		m.asking = false
		m.input = ""
		if question == "" {
			return m, nil
		}
		m.errorMessage = ""
		m.live = true
		return m, opCmd(conversation.OpAsk, func(ctx context.Context) error {
			_, err := m.conv.Ask(ctx, question)
			return err
		})
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.input += " "
		return m, nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

// rerender caches the rendered turns for the current snapshot.
func (m *Model) rerender() {
	m.rendered = m.rendered[:0:0]
	for i := range m.snap.Transcript {
		var out string
		if m.renderer != nil {
			s, err := m.renderer.Turn(m.snap.Transcript, i)
			if err == nil {
				out = s
			}
		}
		if out == "" {
			out = fmt.Sprintf("[%d] %s\n", i, m.snap.Transcript[i])
		}
		m.rendered = append(m.rendered, strings.TrimRight(out, "\n"))
	}
}

// lines flattens the rendered turns, marking the selected one.
func (m Model) lines() []string {
	var out []string
	for i, block := range m.rendered {
		bar := "  "
		if i == m.selected {
			bar = SelectedBarStyle.Render("▌ ")
		}
		for _, l := range strings.Split(block, "\n") {
			out = append(out, bar+l)
		}
		out = append(out, "")
	}
	return out
}

func (m Model) visibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + notice(1) + input(1) + footer(1)
	return max(5, m.height-7)
}

func (m Model) maxScroll() int {
	total := len(m.lines())
	visible := m.visibleLines()
	if total <= visible {
		return 0
	}
	return total - visible
}

// View renders the full TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderTranscript())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	switch {
	case m.errorMessage != "":
		sections = append(sections, ErrorStyle.Render("Error: ")+ErrorTextStyle.Render(m.errorMessage))
	case m.notice != "":
		sections = append(sections, NoticeStyle.Render(m.notice))
	}
	if m.asking {
		sections = append(sections, PromptStyle.Render("? ")+m.input+"▌")
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("PAGECHAT")
	if m.url == "" {
		return title
	}
	return title + URLStyle.Render(" "+truncate(m.url, max(10, m.width-10)))
}

func (m Model) renderStatusBar() string {
	var state string
	if m.busy() {
		state = BusyStyle.Render("● " + strings.ToUpper(string(m.snap.State)))
	} else {
		state = IdleDotStyle.Render("○ IDLE")
	}
	if m.snap.Status != "" {
		state += "  " + StatusStyle.Render(m.snap.Status)
	}
	badge := LiveBadgeStyle.Render("LIVE")
	if !m.live {
		badge = ScrollBadgeStyle.Render("SCROLL")
	}
	gap := m.width - lipgloss.Width(state) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	return state + strings.Repeat(" ", gap) + badge
}

func (m Model) renderTranscript() string {
	height := m.visibleLines()
	all := m.lines()

	var lines []string
	if len(all) == 0 {
		lines = append(lines, "")
		if m.snap.State == conversation.StateIdle {
			lines = append(lines, DimStyle.Render("  Press s to summarize the page or a to ask a question"))
		}
	} else {
		start := m.scroll
		if m.live {
			start = max(0, len(all)-height)
		}
		start = min(max(0, start), len(all))
		end := min(start+height, len(all))
		lines = append(lines, all[start:end]...)
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	if m.asking {
		return FooterKeyStyle.Render("Enter") + FooterDescStyle.Render(" Send") + "  " +
			FooterKeyStyle.Render("Esc") + FooterDescStyle.Render(" Back")
	}
	var parts []string
	if m.busy() {
		parts = append(parts, FooterKeyStyle.Render("Esc")+FooterDescStyle.Render(" Stop"))
	}
	parts = append(parts,
		FooterKeyStyle.Render("s")+FooterDescStyle.Render(" Summarize"),
		FooterKeyStyle.Render("a")+FooterDescStyle.Render(" Ask"),
		FooterKeyStyle.Render("j/k")+FooterDescStyle.Render(" Select"),
		FooterKeyStyle.Render("r")+FooterDescStyle.Render(" Regenerate"),
		FooterKeyStyle.Render("p")+FooterDescStyle.Render(" Speak"),
		FooterKeyStyle.Render("C")+FooterDescStyle.Render(" Clear"),
		FooterKeyStyle.Render("q")+FooterDescStyle.Render(" Quit"),
	)
	return strings.Join(parts, "  ")
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
