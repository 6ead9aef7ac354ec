package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ent0n29/pagechat/internal/content"
	"github.com/ent0n29/pagechat/internal/conversation"
	"github.com/ent0n29/pagechat/internal/inference"
	"github.com/ent0n29/pagechat/internal/render"
	"github.com/ent0n29/pagechat/internal/settings"
	"github.com/ent0n29/pagechat/internal/transcript"
)

type pageSource struct{}

func (pageSource) Acquire(context.Context) (content.Page, error) {
	return content.Page{ID: "https://example.com/", Kind: content.KindHTML, Text: "page text"}, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req inference.GenerateRequest) (inference.Generation, error) {
	return inference.Generation{Text: "**bold** answer", Model: req.Model}, nil
}

type bytesSpeech struct{}

func (bytesSpeech) SynthesizeSpeech(_ context.Context, req inference.SpeechRequest) (inference.Speech, error) {
	return inference.Speech{Audio: []byte(req.Input), ContentType: "audio/mpeg", Filename: "speech.mp3"}, nil
}

func newTestModel(t *testing.T) (Model, *conversation.Session) {
	t.Helper()
	conv, err := conversation.New(conversation.Config{
		Source:    pageSource{},
		Generator: echoGenerator{},
		Speech:    bytesSpeech{},
		Settings:  settings.NewMemoryStore(settings.Settings{Model: "m"}),
	})
	if err != nil {
		t.Fatalf("conversation.New() error = %v", err)
	}
	r, err := render.NewTerminalRenderer(60, "notty")
	if err != nil {
		t.Fatalf("NewTerminalRenderer() error = %v", err)
	}
	m, unsubscribe := New(conv, Options{URL: "https://example.com/", Renderer: r, SpeechDir: t.TempDir()})
	t.Cleanup(func() {
		unsubscribe()
		_ = conv.Close()
	})
	return m, conv
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	m, _ := newTestModel(t)
	if m.selected != -1 {
		t.Errorf("selected = %d, want -1", m.selected)
	}
	if !m.live {
		t.Error("new model should be in live mode")
	}
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() before size = %q", got)
	}
}

func TestSnapshotMsgRendersTurnsAndDropsStale(t *testing.T) {
	m, _ := newTestModel(t)
	m.width, m.height = 80, 24

	snap := conversation.Snapshot{
		Seq:   5,
		State: conversation.StateIdle,
		Transcript: transcript.Transcript{
			transcript.AssistantTurn{Content: "A summary", Model: "m"},
			transcript.UserTurn{Content: "Why?"},
		},
	}
	updated, _ := m.Update(SnapshotMsg{Snapshot: snap})
	model := updated.(Model)
	if len(model.rendered) != 2 {
		t.Fatalf("rendered turns = %d, want 2", len(model.rendered))
	}
	if !strings.Contains(model.rendered[0], "[0] Summary") {
		t.Errorf("summary heading missing: %q", model.rendered[0])
	}

	stale := conversation.Snapshot{Seq: 3, State: conversation.StateGenerating}
	updated, _ = model.Update(SnapshotMsg{Snapshot: stale})
	model = updated.(Model)
	if model.snap.Seq != 5 || len(model.rendered) != 2 {
		t.Errorf("stale snapshot applied: seq = %d", model.snap.Seq)
	}

	view := model.View()
	for _, want := range []string{"PAGECHAT", "Why?", "Summarize", "○ IDLE"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestAskInputRunsQuestion(t *testing.T) {
	m, conv := newTestModel(t)

	updated, _ := m.Update(keyRunes("a"))
	model := updated.(Model)
	if !model.asking {
		t.Fatal("a should open the question prompt")
	}
	for _, k := range []tea.KeyMsg{keyRunes("hi"), {Type: tea.KeySpace}, keyRunes("there")} {
		updated, _ = model.Update(k)
		model = updated.(Model)
	}
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	model = updated.(Model)
	if model.input != "hi ther" {
		t.Fatalf("input = %q, want %q", model.input, "hi ther")
	}

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if model.asking || cmd == nil {
		t.Fatalf("enter should close the prompt and start the ask")
	}
	msg := cmd()
	done, ok := msg.(OpDoneMsg)
	if !ok || done.Op != conversation.OpAsk || done.Err != nil {
		t.Fatalf("ask cmd msg = %#v", msg)
	}

	got := conv.Snapshot().Transcript
	if len(got) != 2 || got[0].Text() != "hi ther" {
		t.Fatalf("transcript = %v", got)
	}
}

func TestEmptyQuestionIsIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	updated, _ := m.Update(keyRunes("/"))
	updated, cmd := updated.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("blank question should not start an operation")
	}
	if updated.(Model).asking {
		t.Fatal("prompt should close")
	}
}

func TestOpDoneErrors(t *testing.T) {
	m, _ := newTestModel(t)

	updated, _ := m.Update(OpDoneMsg{Op: conversation.OpAsk, Err: inference.ErrAborted})
	if msg := updated.(Model).errorMessage; msg != "" {
		t.Errorf("abort produced error %q", msg)
	}

	updated, _ = m.Update(OpDoneMsg{Op: conversation.OpSummarize, Err: &inference.HTTPError{Status: 500, Detail: "boom"}})
	if msg := updated.(Model).errorMessage; msg == "" {
		t.Error("provider failure should surface an error")
	}
}

func TestSummarizeSelectsAndSpeakSaves(t *testing.T) {
	m, conv := newTestModel(t)

	updated, cmd := m.Update(keyRunes("s"))
	msg := cmd()
	updated, _ = updated.(Model).Update(SnapshotMsg{Snapshot: conv.Snapshot()})
	updated, _ = updated.(Model).Update(msg)
	model := updated.(Model)
	if model.selected != 0 {
		t.Fatalf("selected = %d, want 0", model.selected)
	}

	updated, cmd = model.Update(keyRunes("p"))
	saved, ok := cmd().(SpeechSavedMsg)
	if !ok || saved.Err != nil {
		t.Fatalf("speak msg = %#v", saved)
	}
	if filepath.Base(saved.Path) != "speech.mp3" {
		t.Errorf("saved path = %q", saved.Path)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Fatalf("speech file missing: %v", err)
	}
	updated, _ = updated.(Model).Update(saved)
	if !strings.HasPrefix(updated.(Model).notice, "Saved ") {
		t.Errorf("notice = %q", updated.(Model).notice)
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	updated, cmd := m.Update(keyRunes("q"))
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
	if updated.(Model).View() != "" {
		t.Error("view should be empty after quitting")
	}
}
