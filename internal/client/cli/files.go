package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

var errUsage = errors.New("wrong arguments")

func usage(s string) error {
	return fmt.Errorf("%w, usage: %s", errUsage, s)
}

func parentOf(vp string) string {
	dir := path.Dir(strings.TrimSuffix(vp, "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

// isFolder tells folders from files by looking at the parent listing.
// A trailing "/" settles it without a round trip.
func (a *App) isFolder(ctx context.Context, vp string) (bool, error) {
	if vp == "" || strings.HasSuffix(vp, "/") {
		return true, nil
	}
	l, err := a.api.List(ctx, parentOf(vp))
	if err != nil {
		return false, err
	}
	name := path.Base(vp)
	for _, f := range l.Folders {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// List prints the immediate children of a folder, the current one by default.
func (a *App) List(ctx context.Context, args []string) error {
	prefix := a.cwd
	if len(args) > 0 {
		prefix = a.resolveFolder(args[0])
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	l, err := a.api.List(ctx, prefix)
	if err != nil {
		return err
	}

	if len(l.Folders) == 0 && len(l.Files) == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return nil
	}
	for _, f := range l.Folders {
		fmt.Fprintf(a.out, "%-40s %12s  %s\n", f.Name+"/", humanSize(f.Size), f.LastModified)
	}
	for _, f := range l.Files {
		fmt.Fprintf(a.out, "%-40s %12s  %s  %s\n", f.Name, humanSize(f.Size), f.LastModified, f.MimeType)
	}
	return nil
}

// Cd changes the current folder after checking it exists. An empty folder
// lists fine, so existence is read from the parent listing.
func (a *App) Cd(ctx context.Context, args []string) error {
	target := ""
	if len(args) > 0 {
		target = a.resolveFolder(args[0])
	}
	if target != "" {
		ctx, cancel := a.call(ctx)
		defer cancel()
		ok, err := a.isFolder(ctx, strings.TrimSuffix(target, "/"))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("folder /%s: %w", target, common.ErrNotFound)
		}
	}
	a.cwd = target
	return nil
}

func (a *App) Mkdir(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("mkdir <path>")
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	// the server rejects "..", so the path goes out resolved
	key, err := a.api.CreateFolder(ctx, a.resolve(args[0]), "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created /%s\n", key)
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasSuffix(args[0], "/") {
		return usage("rm <file>")
	}
	vp := a.resolve(args[0])
	if vp == "" {
		return usage("rm <file>")
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	if err := a.api.Delete(ctx, vp, false); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted /%s\n", vp)
	return nil
}

// RemoveDir deletes a folder with everything below it after a confirmation.
func (a *App) RemoveDir(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rmdir <folder>")
	}
	vp := a.resolveFolder(args[0])
	if vp == "" {
		return fmt.Errorf("cannot delete the root folder: %w", common.ErrInvalidPath)
	}

	ok, err := Confirm(a.reader, fmt.Sprintf("Delete /%s and everything in it?", vp), a.out)
	if err != nil || !ok {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	if err := a.api.Delete(ctx, vp, true); err != nil {
		return err
	}
	if strings.HasPrefix(a.cwd, vp) {
		a.cwd = parentOf(vp)
	}
	fmt.Fprintf(a.out, "Deleted /%s\n", vp)
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rename <path> <newName>")
	}
	vp := a.resolve(args[0])
	if vp == "" {
		return fmt.Errorf("cannot rename the root folder: %w", common.ErrInvalidPath)
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	folder, err := a.isFolder(ctx, vp)
	if err != nil {
		return err
	}

	key, err := a.api.Rename(ctx, vp, args[1], folder)
	if err != nil {
		return err
	}
	if folder && strings.HasPrefix(a.cwd, strings.TrimSuffix(vp, "/")+"/") {
		a.cwd = key + strings.TrimPrefix(a.cwd, strings.TrimSuffix(vp, "/")+"/")
	}
	fmt.Fprintf(a.out, "Renamed to /%s\n", key)
	return nil
}

func (a *App) Move(ctx context.Context, args []string) error {
	return a.relocate(ctx, args, "mv", a.api.Move)
}

func (a *App) Copy(ctx context.Context, args []string) error {
	return a.relocate(ctx, args, "cp", a.api.Copy)
}

func (a *App) relocate(ctx context.Context, args []string, name string, op func(context.Context, []string, string) ([]string, error)) error {
	if len(args) < 2 {
		return usage(name + " <path...> <folder>")
	}
	target := a.resolveFolder(args[len(args)-1])

	ctx, cancel := a.call(ctx)
	defer cancel()

	paths := make([]string, 0, len(args)-1)
	for _, arg := range args[:len(args)-1] {
		vp := a.resolve(arg)
		folder, err := a.isFolder(ctx, vp)
		if err != nil {
			return err
		}
		if folder && vp != "" && !strings.HasSuffix(vp, "/") {
			vp += "/"
		}
		paths = append(paths, vp)
	}

	keys, err := op(ctx, paths, target)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintf(a.out, "-> /%s\n", k)
	}
	return nil
}

// URL prints a time-limited link to a file.
func (a *App) URL(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("url <file>")
	}

	ctx, cancel := a.call(ctx)
	defer cancel()

	u, err := a.api.SignedURL(ctx, a.resolve(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, u)
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
