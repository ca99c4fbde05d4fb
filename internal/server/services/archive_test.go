package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

func TestArchive_WritesRelativeEntries(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := NewArchiveService(store, testConfig(), logging.Nop{})

	putFile(t, store, "users/u1/docs/", "")
	putFile(t, store, "users/u1/docs/a.txt", "top")
	putFile(t, store, "users/u1/docs/x/a.txt", "nested")
	putFile(t, store, "users/u1/docs/x/", "")
	putFile(t, store, "users/u1/other.txt", "skip")

	a, err := svc.Prepare(ctx, "u1", "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs.zip", a.Name)

	var buf bytes.Buffer
	n, err := a.WriteTo(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	got := map[string]string{}
	var names []string
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(b)
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "x/a.txt"}, names, "same-named files keep their subfolder")
	assert.Equal(t, "nested", got["x/a.txt"])
}

func TestArchive_RootName(t *testing.T) {
	store := newFaultyStore()
	svc := NewArchiveService(store, testConfig(), logging.Nop{})
	putFile(t, store, "users/u1/a.txt", "a")

	a, err := svc.Prepare(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "files.zip", a.Name)
}

func TestArchive_EmptyOrMissing(t *testing.T) {
	svc := NewArchiveService(newFaultyStore(), testConfig(), logging.Nop{})

	_, err := svc.Prepare(context.Background(), "u1", "nope")
	assert.ErrorIs(t, err, common.ErrEmptyOrMissingFolder)
}

func TestArchive_ReadFailureLeavesArchiveUnfinished(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := NewArchiveService(store, testConfig(), logging.Nop{})

	putFile(t, store, "users/u1/d/1.txt", "one")
	putFile(t, store, "users/u1/d/2.txt", "two")
	store.failGet = func(k string) bool { return k == "users/u1/d/2.txt" }

	a, err := svc.Prepare(ctx, "u1", "d")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = a.WriteTo(ctx, &buf)
	require.ErrorIs(t, err, errInjected)

	_, err = zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.Error(t, err, "a truncated archive must not parse as a complete zip")
}
