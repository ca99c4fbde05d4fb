package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Signup prompts for a username and password and creates the account.
// The server provisions the default folders; the user still has to log in.
func (a *App) Signup(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.call(ctx)
	defer cancel()

	if err := a.api.Signup(ctx, userName, string(password)); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Account created, you can log in now.")
	return nil
}

// Login prompts for credentials and starts a session. The tokens are saved
// to the session file so the next run starts logged in.
func (a *App) Login(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	ctx, cancel := a.call(ctx)
	defer cancel()

	prev := a.userName
	a.userName = userName
	if err := a.api.Login(ctx, userName, string(password)); err != nil {
		a.userName = prev
		return err
	}

	a.cwd = ""
	fmt.Fprintf(a.out, "Logged in as %s\n", userName)
	return nil
}

// Logout forgets the session locally. Refresh tokens expire on the server.
func (a *App) Logout(_ context.Context, _ []string) error {
	a.api.SetTokens(api.Tokens{})
	a.userName = ""
	a.cwd = ""
	if err := clearSession(a.config.TokenFile); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
