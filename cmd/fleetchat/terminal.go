package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"

	"github.com/ggoodman/fleetsocket/chat"
	"github.com/ggoodman/fleetsocket/client"
)

var (
	styleTime   = color.New(color.FgDarkGray)
	styleFrom   = color.New(color.FgCyan, color.OpBold)
	styleSystem = color.New(color.FgYellow)
	styleError  = color.New(color.FgRed)
)

// terminal renders session changes as lines of text.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) banner(cfg client.Config) {
	t.system(fmt.Sprintf("connecting to %s as %q in #%s (/join, /name, /quit)", cfg.URL, cfg.Name, cfg.Room))
}

func (t *terminal) render(ch client.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch.Replaced {
		fmt.Fprintln(t.out, styleSystem.Render("--- history ---"))
	}
	for _, env := range ch.Messages {
		fmt.Fprintln(t.out, formatEnvelope(env))
	}
}

func (t *terminal) state(connected bool) {
	if connected {
		t.system("connected")
		return
	}
	t.system("disconnected, messages will be sent on reconnect")
}

func (t *terminal) system(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, styleSystem.Render("* "+msg))
}

func (t *terminal) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, styleError.Render("! "+err.Error()))
}

func formatEnvelope(env chat.Envelope) string {
	ts := env.Time().Format(time.TimeOnly)
	return fmt.Sprintf("%s %s %s", styleTime.Render(ts), styleFrom.Render(env.From+":"), env.Content)
}

// session is the part of client.Client driven by user input.
type session interface {
	Send(content string) (chat.Envelope, bool)
	SetRoom(room string) error
	SetName(name string) error
}

// readInput dispatches stdin lines until EOF, /quit or ctx is done.
func readInput(ctx context.Context, in io.Reader, s session, ui *terminal) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := handleLine(sc.Text(), s, ui); quit {
			return
		}
	}
}

func handleLine(line string, s session, ui *terminal) (quit bool) {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return true
	case "/join":
		if err := s.SetRoom(arg); err != nil {
			ui.fail(err)
			return false
		}
		ui.system("joined #" + arg)
	case "/name":
		if err := s.SetName(arg); err != nil {
			ui.fail(err)
			return false
		}
		ui.system("name set to " + arg)
	default:
		s.Send(line)
	}
	return false
}
