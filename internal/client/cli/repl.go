package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Cd(ctx context.Context, args []string) error
	Mkdir(ctx context.Context, args []string) error
	Put(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	RemoveDir(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Copy(ctx context.Context, args []string) error
	URL(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Zip(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: signup, login, help, exit"
	helpLoggedIn  = `Available commands:
  ls [folder]                   list a folder
  cd [folder]                   change the current folder
  mkdir <path>                  create a folder
  put <file...> [--to folder]   chunked upload with progress
  upload <file...>              upload in a single request
  rm <file>                     delete a file
  rmdir <folder>                delete a folder and its contents
  rename <path> <newName>       rename a file or folder
  mv <path...> <folder>         move into a folder
  cp <path...> <folder>         copy into a folder
  url <file>                    print a temporary download link
  get <file>                    download a file
  zip [folder]                  download a folder as zip
  logout, help, exit`
)

// runREPL reads commands line by line and dispatches them to a. Prompts of
// the commands read from the same reader. The first
// token is the command, the rest are its arguments. File commands need a
// session. The loop ends on EOF or "exit"/"quit".
//
// Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gd %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var handler func(context.Context, []string) error
		needsSession := true

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "signup", "register":
			handler, needsSession = a.Signup, false
		case "login":
			handler, needsSession = a.Login, false
		case "logout":
			handler = a.Logout
		case "l", "ls", "list":
			handler = a.List
		case "cd":
			handler = a.Cd
		case "mkdir":
			handler = a.Mkdir
		case "put":
			handler = a.Put
		case "upload":
			handler = a.Upload
		case "rm":
			handler = a.Remove
		case "rmdir":
			handler = a.RemoveDir
		case "rename":
			handler = a.Rename
		case "mv":
			handler = a.Move
		case "cp":
			handler = a.Copy
		case "url":
			handler = a.URL
		case "get":
			handler = a.Get
		case "zip":
			handler = a.Zip

		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if needsSession && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}
		if err := handler(ctx, args); err != nil {
			printlnFn(describeError(err))
		}
	}
}

// describeError renders an error for the user, including the paths a partial
// failure reported.
func describeError(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")

	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		b.WriteString(err.Error())
		return b.String()
	}

	b.WriteString(apiErr.Message)
	if len(apiErr.Failed) > 0 {
		fmt.Fprintf(&b, "\n  not deleted: %s", strings.Join(apiErr.Failed, ", "))
	}
	if len(apiErr.Dangling) > 0 {
		fmt.Fprintf(&b, "\n  copied but not removed from the source: %s", strings.Join(apiErr.Dangling, ", "))
	}
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		b.WriteString("\n  session expired, please log in again")
	case apiErr.Restart:
		b.WriteString("\n  the upload has to be started again")
	case apiErr.Retryable:
		b.WriteString("\n  try again later")
	}
	return b.String()
}

// Root runs the interactive session on stdin until the user exits.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to GophDrive CLI (type 'help' for commands)")
	if a.isLoggedIn() {
		printlnFn("Resumed session for", a.userName)
	}

	runREPL(ctx, a, a.prompt, a.reader)
}
