package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Authorize access to the mailbox",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "code",
			Usage: "Authorization code; prompted for when omitted",
		},
	},
	Action: cmdLogin,
}

var logoutCommand = &cli.Command{
	Name:  "logout",
	Usage: "Forget the stored credentials",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Also delete every synchronized message and conversation",
		},
	},
	Action: cmdLogout,
}

var whoamiCommand = &cli.Command{
	Name:  "whoami",
	Usage: "Print the account the stored credentials belong to",
	Action: func(ctx *cli.Context) error {
		session, err := newSession(getConfig(ctx), getKeyring(ctx), getLogger(ctx))
		if err != nil {
			return err
		}
		if !session.IsAuthenticated() {
			return errors.New("you are not logged in, run 'vchat login' first")
		}
		name := session.CurrentUserDisplayName()
		if name == "" {
			name = "(no display name)"
		}
		_, _ = fmt.Fprintf(ctx.App.Writer, "%s <%s>\n", name, session.CurrentUserEmail())
		return nil
	},
}

func cmdLogin(ctx *cli.Context) error {
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	code := ctx.String("code")
	if code == "" {
		_, _ = fmt.Fprintf(ctx.App.Writer, "Open this URL and paste the authorization code:\n\n%s\n\nCode: ", app.session.LoginURL(uuid.NewString()))
		line, err := bufio.NewReader(ctx.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		return errors.New("no authorization code given")
	}

	if err := app.session.Login(ctx.Context, code); err != nil {
		return err
	}

	profile, err := app.provider.Profile(ctx.Context)
	if err != nil {
		return fmt.Errorf("logged in, but failed to read the profile: %w", err)
	}
	app.session.SetProfile(*profile)
	_, _ = fmt.Fprintf(ctx.App.Writer, "Logged in as %s\n", profile.Email)
	return nil
}

func cmdLogout(ctx *cli.Context) error {
	if !ctx.Bool("reset") {
		session, err := newSession(getConfig(ctx), getKeyring(ctx), getLogger(ctx))
		if err != nil {
			return err
		}
		if err := session.Logout(); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(ctx.App.Writer, "Logged out")
		return nil
	}

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.Reset(ctx.Context); err != nil {
		return fmt.Errorf("failed to reset the local mailbox: %w", err)
	}
	if err := app.session.Logout(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(ctx.App.Writer, "Logged out and cleared the local mailbox")
	return nil
}
