package client

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/shell"
)

const alreadyLoggedInMsg = "The client is already logged in, log out before trying again"

// Run is the command task: it reads one command per line from in until EOF,
// `exit`, or ctx is done, then closes any open login.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	defer c.Close()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := shell.Parse(scanner.Text())
		switch {
		case errors.Is(err, shell.ErrEmpty):
			continue
		case errors.Is(err, shell.ErrUnknown):
			c.printf("Unknown command. Commands:\n%s", shell.Help())
			continue
		case err != nil:
			c.printf("%v", err)
			continue
		}
		quit, err := c.Execute(ctx, cmd)
		if err != nil {
			c.report(cmd, err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// Execute applies one parsed command. quit is set for `exit` with no
// channel.
func (c *Client) Execute(ctx context.Context, cmd shell.Command) (quit bool, err error) {
	switch cmd.Kind {
	case shell.Login:
		return false, c.Login(ctx, cmd.Addr, cmd.User, cmd.Passcode)
	case shell.Join:
		_, err = c.Join(cmd.Channel)
		return false, err
	case shell.Exit:
		_, err = c.Exit(cmd.Channel)
		return false, err
	case shell.Report:
		n, err := c.Report(cmd.File)
		if err == nil {
			c.printf("Report successfully sent for file: %s (%d events)", cmd.File, n)
		}
		return false, err
	case shell.Summary:
		err = c.Summary(cmd.Channel, cmd.User, cmd.File)
		if err == nil {
			c.printf("Summary written to %s", cmd.File)
		}
		return false, err
	case shell.Logout:
		return false, c.Logout(ctx)
	case shell.Quit:
		if c.LoggedIn() {
			if err := c.Logout(ctx); err != nil {
				c.log.Warn().Err(err).Msg("logout on exit")
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) report(cmd shell.Command, err error) {
	if errors.Is(err, ErrAlreadyLoggedIn) {
		c.printf(alreadyLoggedInMsg)
		return
	}
	if serr, ok := session.AsServerError(err); ok {
		c.printf("%s failed: %s", cmd.Kind, serr.Message)
		return
	}
	c.printf("%s failed: %v", cmd.Kind, err)
}
