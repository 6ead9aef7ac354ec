package tui

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeySummarize  = "s"
	KeyAsk        = "a"
	KeyAskAlt     = "/"
	KeyRegenerate = "r"
	KeyClear      = "C"
	KeySpeak      = "p"
	KeyStop       = "esc"
	KeyNext       = "j"
	KeyPrev       = "k"
	KeyUp         = "up"
	KeyDown       = "down"
)
