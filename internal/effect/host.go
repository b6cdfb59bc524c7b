package effect

import (
	"context"
	"strings"
	"sync"
)

// Command is one platform call recorded by CommandHost for a remote client
// to carry out.
type Command struct {
	Op      string        `json:"op"` // open_url, set_clipboard, share, add_contact
	URL     string        `json:"url,omitempty"`
	Text    string        `json:"text,omitempty"`
	Share   *ShareContent `json:"share,omitempty"`
	Contact *Contact      `json:"contact,omitempty"`
}

// CommandHost is a Host for clients that execute effects themselves, such as
// the browser monitor. Every call is recorded as a Command; URLs can be opened
// when their scheme is in the handler list.
type CommandHost struct {
	mu       sync.Mutex
	schemes  map[string]bool
	commands []Command
}

// DefaultSchemes are the URL schemes any client is assumed to handle.
var DefaultSchemes = []string{"http", "https", "mailto", "tel", "sms", "smsto", "geo"}

// NewCommandHost returns a host that can open the given schemes.
func NewCommandHost(schemes ...string) *CommandHost {
	h := &CommandHost{schemes: make(map[string]bool)}
	for _, s := range schemes {
		h.schemes[strings.ToLower(s)] = true
	}
	return h
}

func (h *CommandHost) CanOpenURL(_ context.Context, url string) (bool, error) {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok {
		return false, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.schemes[strings.ToLower(scheme)], nil
}

func (h *CommandHost) record(c Command) {
	h.mu.Lock()
	h.commands = append(h.commands, c)
	h.mu.Unlock()
}

func (h *CommandHost) OpenURL(_ context.Context, url string) error {
	h.record(Command{Op: "open_url", URL: url})
	return nil
}

func (h *CommandHost) SetClipboard(_ context.Context, text string) error {
	h.record(Command{Op: "set_clipboard", Text: text})
	return nil
}

func (h *CommandHost) Share(_ context.Context, content ShareContent) error {
	h.record(Command{Op: "share", Share: &content})
	return nil
}

func (h *CommandHost) AddContact(_ context.Context, c Contact) error {
	h.record(Command{Op: "add_contact", Contact: &c})
	return nil
}

// Drain returns and clears the recorded commands.
func (h *CommandHost) Drain() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.commands
	h.commands = nil
	return out
}
