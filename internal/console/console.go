// Package console is an interactive developer shell over a booted chair. It stands in for
// the physical remote and keypad in dev mode: buttons are pressed, scripts run and state is
// inspected from the terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/charmbracelet/log"

	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/version"
)

// ErrUnknownCommand is returned by Exec for names that are not console commands.
var ErrUnknownCommand = errors.New("unknown console command")

// command is one console verb.
type command struct {
	name    string
	usage   string
	help    string
	minArgs int
	run     func(ctx context.Context, w io.Writer, args []string) error
}

// Console dispatches console commands against a kernel.
type Console struct {
	k        *kernel.Kernel
	logger   *log.Logger
	commands map[string]command
}

// New creates a console for k. The kernel must be initialized before commands run.
func New(k *kernel.Kernel) *Console {
	c := &Console{
		k:        k,
		logger:   logger.NewStyledLogger("Console"),
		commands: make(map[string]command),
	}
	c.register()
	return c
}

// Commands lists the command names, sorted.
func (c *Console) Commands() []string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec runs one command line, already split into words, writing its output to w.
func (c *Console) Exec(ctx context.Context, w io.Writer, words []string) error {
	if len(words) == 0 {
		return nil
	}
	cmd, ok := c.commands[words[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, words[0])
	}
	args := words[1:]
	if len(args) < cmd.minArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}

	c.logger.Debug("Console command", "command", cmd.name, "args", args)
	return cmd.run(ctx, w, args)
}

// Shell builds an ishell shell exposing every command. Messages published by the chair are
// printed as they arrive.
func (c *Console) Shell() *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("chair> ")

	for _, name := range c.Commands() {
		cmd := c.commands[name]
		sh.AddCmd(&ishell.Cmd{
			Name:     cmd.name,
			Help:     cmd.help,
			LongHelp: "usage: " + cmd.usage,
			Func: func(ic *ishell.Context) {
				var out strings.Builder
				err := c.Exec(context.Background(), &out, append([]string{cmd.name}, ic.Args...))
				if out.Len() > 0 {
					ic.Print(out.String())
				}
				if err != nil {
					ic.Err(err)
				}
			},
		})
	}
	return sh
}

// Run starts the interactive shell and blocks until the user exits or the chair requests
// shutdown.
func (c *Console) Run() error {
	st, err := c.k.State()
	if err != nil {
		return err
	}

	sh := c.Shell()
	stopMessages := st.Message.Watch(func(msg string) {
		if msg != "" {
			sh.Println(messageStyle.Render("» " + msg))
		}
	})
	defer stopMessages()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-c.k.Done():
			sh.Println("Chair shutting down")
			sh.Close()
		case <-finished:
		}
	}()

	sh.Println(fmt.Sprintf("Chair console %s - type 'help' for commands", version.GetVersion()))
	sh.Run()
	return nil
}
