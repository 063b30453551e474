package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/helpline/internal/dialogue"
	"github.com/zulandar/helpline/internal/engine"
	"github.com/zulandar/helpline/internal/session"
)

const chatPrompt = "you> "

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the support bot in the terminal",
		Long:  "Starts an interactive conversation. Type a number to send a quick question, /help for commands, /quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// lineReader yields one line of user input per call and io.EOF at the end.
type lineReader interface {
	ReadLine() (string, error)
}

// maxInputLen bounds the bytes of one input line. The rest of a longer line
// is discarded.
const maxInputLen = 4000

type bufReader struct {
	r *bufio.Reader
}

func newBufReader(r io.Reader) *bufReader {
	return &bufReader{r: bufio.NewReader(r)}
}

func (b *bufReader) ReadLine() (string, error) {
	var line []byte
	for {
		frag, isPrefix, err := b.r.ReadLine()
		if err != nil {
			return "", err
		}
		if room := maxInputLen - len(line); room > 0 {
			line = append(line, clipBytes(frag, room)...)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

// clipBytes cuts p to at most n bytes without splitting a UTF-8 sequence.
func clipBytes(p []byte, n int) []byte {
	if len(p) <= n {
		return p
	}
	for n > 0 && !utf8.RuneStart(p[n]) {
		n--
	}
	return p[:n]
}

// openConsole returns the input reader and output writer for the REPL. A
// real terminal is put in raw mode and wrapped in term.Terminal for line
// editing; anything else is read line by line.
func openConsole(cmd *cobra.Command) (lineReader, io.Writer, func()) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		if state, err := term.MakeRaw(fd); err == nil {
			t := term.NewTerminal(struct {
				io.Reader
				io.Writer
			}{f, cmd.OutOrStdout()}, chatPrompt)
			return t, t, func() { term.Restore(fd, state) }
		}
	}
	return newBufReader(cmd.InOrStdin()), cmd.OutOrStdout(), func() {}
}

func runChat(cmd *cobra.Command, configPath string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cmd, configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	in, out, restore := openConsole(cmd)
	defer restore()

	c := &console{
		engine: a.engine,
		sess:   a.sessions("cli").Create(),
		out:    out,
		now:    time.Now,
	}
	return c.run(ctx, in)
}

// console is one terminal conversation.
type console struct {
	engine *engine.Engine
	sess   *session.Session
	out    io.Writer
	now    func() time.Time
}

func (c *console) run(ctx context.Context, in lineReader) error {
	fmt.Fprintf(c.out, "Bot: %s\n", c.engine.Welcome())
	c.printTopics()
	fmt.Fprintln(c.out, "Type /help for commands, /quit to leave.")

	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat: read input: %w", err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") {
			if quit := c.command(text); quit {
				fmt.Fprintln(c.out, "Goodbye!")
				return nil
			}
			continue
		}
		if q, ok := c.quickQuestion(text); ok {
			fmt.Fprintf(c.out, "You: %s\n", q)
			text = q
		}

		outcome, err := c.engine.Turn(ctx, c.sess, text)
		if err != nil {
			return err
		}
		c.printReply(outcome)
	}
}

// quickQuestion maps "1", "2", ... to the matching shortcut prompt.
func (c *console) quickQuestion(text string) (string, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return "", false
	}
	quick := c.engine.QuickQuestions()
	if n < 1 || n > len(quick) {
		return "", false
	}
	return quick[n-1].Prompt, true
}

func (c *console) printReply(o engine.Outcome) {
	fmt.Fprintf(c.out, "Bot: %s\n", o.Reply.Content)
	if o.Reply.Kind == dialogue.KindEscalation && o.Ticket != nil {
		if o.Ticket.URL != "" {
			fmt.Fprintf(c.out, "     Ticket %s opened: %s\n", o.Ticket.ID, o.Ticket.URL)
		} else {
			fmt.Fprintf(c.out, "     Ticket %s opened\n", o.Ticket.ID)
		}
	}
}

func (c *console) printTopics() {
	fmt.Fprintln(c.out, "Quick questions:")
	for i, q := range c.engine.QuickQuestions() {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, q.Label)
	}
}

// command runs a slash command and reports whether the user asked to quit.
func (c *console) command(text string) bool {
	args := strings.Fields(text)
	switch strings.ToLower(strings.TrimPrefix(args[0], "/")) {
	case "quit", "exit":
		return true
	case "help":
		c.printHelp()
	case "reset", "clear":
		c.sess.Clear()
		fmt.Fprintf(c.out, "Conversation cleared.\nBot: %s\n", c.engine.Welcome())
	case "history":
		c.printHistory()
	case "stats":
		c.printStats()
	case "export":
		c.export(args[1:])
	case "topics":
		c.printTopics()
	default:
		fmt.Fprintf(c.out, "Unknown command %s. Type /help for commands.\n", args[0])
	}
	return false
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  /reset           Clear the conversation
  /history         Show the conversation so far
  /stats           Message count and intent distribution
  /export [file]   Save the conversation as CSV
  /topics          List the quick questions
  /quit            Leave the chat
`)
}

func (c *console) printHistory() {
	turns := c.sess.Turns()
	if len(turns) == 0 {
		fmt.Fprintln(c.out, "No conversation history yet.")
		return
	}
	for _, t := range turns {
		who := "You"
		if t.Role == session.RoleAssistant {
			who = "Bot"
		}
		fmt.Fprintf(c.out, "%s %s: %s\n", t.At.Format("15:04"), who, t.Content)
	}
}

func (c *console) printStats() {
	st := c.sess.Stats()
	fmt.Fprintf(c.out, "Messages: %d | Escalations: %d\n", st.UserMessages, st.Escalations)
	if len(st.Intents) == 0 {
		fmt.Fprintln(c.out, "No intents yet.")
		return
	}
	names := make([]string, 0, len(st.Intents))
	for name := range st.Intents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if st.Intents[names[i]] != st.Intents[names[j]] {
			return st.Intents[names[i]] > st.Intents[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-20s %d\n", name, st.Intents[name])
	}
}

func (c *console) export(args []string) {
	if len(c.sess.Turns()) == 0 {
		fmt.Fprintln(c.out, "No conversation history to export.")
		return
	}
	path := session.ExportFilename(c.now())
	if len(args) > 0 {
		path = args[0]
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(c.out, "Export failed: %v\n", err)
		return
	}
	err = c.sess.ExportCSV(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(c.out, "Export failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Conversation exported to %s\n", path)
}
