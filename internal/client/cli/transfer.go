package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/client/uploader"
	"github.com/dmitrijs2005/gophdrive/internal/filex"
	"github.com/dmitrijs2005/gophdrive/internal/netx"
)

// Put uploads local files with the chunked protocol, one after another,
// into the current folder or the one given with --to.
func (a *App) Put(ctx context.Context, args []string) error {
	folder := a.cwd
	files := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--to" {
			if i+1 >= len(args) {
				return usage("put <file...> [--to folder]")
			}
			folder = a.resolveFolder(args[i+1])
			i++
			continue
		}
		files = append(files, args[i])
	}
	if len(files) == 0 {
		return usage("put <file...> [--to folder]")
	}

	batch := uploader.NewBatchProgress(len(files))
	var failed []string
	for i, f := range files {
		name := filepath.Base(f)
		progress := batch.Track(i, func(file, overall float64) {
			fmt.Fprintf(a.out, "\r%s %5.1f%%  (all files %5.1f%%)", name, file, overall)
		})

		key, err := a.uploader.UploadFile(ctx, f, folder, progress)
		if errors.Is(err, uploader.ErrEmptyFile) {
			// zero-length files have no parts, the form route takes them
			key, err = a.uploadOne(ctx, folder, f)
		}
		if err != nil {
			fmt.Fprintf(a.out, "\r%s failed: %v\n", name, err)
			failed = append(failed, f)
			continue
		}
		fmt.Fprintf(a.out, "\r%s -> /%s\n", name, key)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d uploads failed: %s", len(failed), len(files), strings.Join(failed, ", "))
	}
	return nil
}

func (a *App) uploadOne(ctx context.Context, folder, file string) (string, error) {
	results, err := a.api.Upload(ctx, folder, []string{file})
	if err != nil {
		return "", err
	}
	if len(results) != 1 || !results[0].Success {
		msg := "no result"
		if len(results) == 1 {
			msg = results[0].Error
		}
		return "", errors.New(msg)
	}
	return results[0].Key, nil
}

// Upload sends local files in one multipart request. Every file gets its
// own result line.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("upload <file...>")
	}

	results, err := a.api.Upload(ctx, a.cwd, args)
	if err != nil {
		return err
	}

	failed := 0
	for i, r := range results {
		name := ""
		if i < len(args) {
			name = filepath.Base(args[i])
		}
		if r.Success {
			fmt.Fprintf(a.out, "%s -> /%s\n", name, r.Key)
			continue
		}
		failed++
		fmt.Fprintf(a.out, "%s failed: %s\n", name, r.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	return nil
}

// Get downloads a file through a signed link into the download directory.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasSuffix(args[0], "/") {
		return usage("get <file>")
	}
	vp := a.resolve(args[0])

	callCtx, cancel := a.call(ctx)
	link, err := a.api.SignedURL(callCtx, vp)
	cancel()
	if err != nil {
		return err
	}

	return a.saveTo(path.Base(vp), func(f *os.File) (int64, error) {
		return netx.DownloadSignedURL(ctx, a.transfers, link, f)
	})
}

// Zip downloads a folder as a zip archive.
func (a *App) Zip(ctx context.Context, args []string) error {
	folder := a.cwd
	if len(args) > 0 {
		folder = a.resolveFolder(args[0])
	}
	name := "files.zip"
	if folder != "" {
		name = path.Base(strings.TrimSuffix(folder, "/")) + ".zip"
	}

	return a.saveTo(name, func(f *os.File) (int64, error) {
		return a.api.DownloadFolder(ctx, folder, f)
	})
}

// saveTo creates a fresh file in the download directory and fills it.
// A failed transfer leaves nothing behind.
func (a *App) saveTo(name string, fill func(*os.File) (int64, error)) error {
	dir, err := filex.EnsureDir(a.config.DownloadDir)
	if err != nil {
		return err
	}
	f, err := filex.CreateUnique(dir, name)
	if err != nil {
		return err
	}

	n, err := fill(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return err
	}

	fmt.Fprintf(a.out, "Saved %s (%s)\n", f.Name(), humanSize(n))
	return nil
}
