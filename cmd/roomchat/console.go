package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"

	"github.com/whisper/roomchat/internal/chat"
	"github.com/whisper/roomchat/internal/session"
)

var (
	ownStyle    = color.New(color.FgCyan, color.OpBold)
	peerStyle   = color.New(color.FgGreen)
	typingStyle = color.New(color.FgGray, color.OpItalic)
	infoStyle   = color.New(color.FgYellow)
	warnStyle   = color.New(color.FgRed)
)

// console renders a session's log and typing indicator as lines of text.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	unsubs []func()
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// handle runs one input line: a slash command or a message for the room.
func (c *console) handle(ctx context.Context, sess *session.Session, line string, username *string) (bool, error) {
	name, args, isCommand := parseCommand(line)
	if !isCommand {
		if err := sess.NotifyTyping(ctx); err != nil {
			return false, err
		}
		_, err := sess.Send(line)
		return false, err
	}

	switch name {
	case "join":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /join <room> [name]")
		}
		if len(args) > 1 {
			*username = args[1]
		}
		c.leave(sess)
		return false, c.join(ctx, sess, args[0], *username)
	case "leave":
		c.leave(sess)
		return false, nil
	case "typing":
		return false, sess.NotifyTyping(ctx)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
}

func (c *console) join(ctx context.Context, sess *session.Session, room, username string) error {
	if err := sess.Join(ctx, room, username); err != nil {
		return err
	}
	c.info(fmt.Sprintf("joined %s as %s", sess.RoomID(), sess.Username()))
	return nil
}

// attach renders a join's log and typing indicator. It runs as the session's
// join hook, before the first inbound event of the join.
func (c *console) attach(room session.JoinedRoom) {
	self := room.Username
	c.unsubs = append(c.unsubs,
		room.Log.Observe(func(msg chat.Message) { c.message(msg, self) }),
		room.Typing.Observe(c.typing),
	)
}

func (c *console) leave(sess *session.Session) {
	for _, unsubscribe := range c.unsubs {
		unsubscribe()
	}
	c.unsubs = nil
	if sess.State() == session.StateJoined {
		sess.Leave()
		c.info("left " + sess.RoomID())
	}
}

func (c *console) message(msg chat.Message, self string) {
	style := peerStyle
	if msg.IsOwn(self) {
		style = ownStyle
	}
	c.println(fmt.Sprintf("[%s] %s: %s", msg.SentAt, style.Render(msg.Author), msg.Body))
}

func (c *console) typing(name string) {
	if name == "" {
		return
	}
	c.println(typingStyle.Render(name + " is typing..."))
}

func (c *console) info(text string) {
	c.println(infoStyle.Render(text))
}

func (c *console) warn(text string) {
	c.println(warnStyle.Render(text))
}

func (c *console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}
