package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/bindle-store/storage"
)

const testManifest = `bindleVersion = "v1.0.0"

[bindle]
  name = "example/hello"
  version = "0.1.0"

[[parcel]]
  [parcel.label]
    sha256 = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
    mediaType = "text/plain"
    name = "hello.txt"
    size = 6
`

const testLabel = `sha256 = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
mediaType = "text/plain"
name = "hello.txt"
size = 6
`

// runCLI parses args and runs the selected command, returning its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx := context.Background()

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Vars{"version": "test"},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	a, err := newApp(ctx, &cli.Globals, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	err = kctx.Run(a)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLIInvoiceLifecycle(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")
	manifest := writeFile(t, dir, "invoice.toml", testManifest)
	label := writeFile(t, dir, "label.toml", testLabel)
	data := writeFile(t, dir, "hello.txt", "hello\n")

	out, err := runCLI(t, "--root", root, "create-invoice", manifest)
	require.NoError(t, err)
	require.Contains(t, out, "hello.txt")

	_, err = runCLI(t, "--root", root, "create-parcel", "--label", label, data)
	require.NoError(t, err)

	out, err = runCLI(t, "--root", root, "get-parcel", "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03")
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)

	out, err = runCLI(t, "--root", root, "get-invoice", "example/hello/0.1.0")
	require.NoError(t, err)
	require.Contains(t, out, `name = "example/hello"`)

	_, err = runCLI(t, "--root", root, "yank", "example/hello/0.1.0")
	require.NoError(t, err)

	_, err = runCLI(t, "--root", root, "get-invoice", "example/hello/0.1.0")
	require.ErrorIs(t, err, storage.ErrYanked)

	out, err = runCLI(t, "--root", root, "get-invoice", "--yanked", "example/hello/0.1.0")
	require.NoError(t, err)
	require.Contains(t, out, "yanked = true")
}

func TestCLIOutboxSync(t *testing.T) {
	dir := t.TempDir()
	globals := []string{
		"--root", filepath.Join(dir, "store"),
		"--index", filepath.Join(dir, "index.db"),
		"--outbox", filepath.Join(dir, "outbox.db"),
	}
	manifest := writeFile(t, dir, "invoice.toml", testManifest)

	_, err := runCLI(t, append(globals, "create-invoice", manifest)...)
	require.NoError(t, err)

	out, err := runCLI(t, append(globals, "search", "example/hello")...)
	require.NoError(t, err)
	require.NotContains(t, out, "0.1.0")

	_, err = runCLI(t, append(globals, "sync", "--once")...)
	require.NoError(t, err)

	out, err = runCLI(t, append(globals, "search", "example/hello")...)
	require.NoError(t, err)
	require.Contains(t, out, "0.1.0")
}

func TestCLIOutboxRequiresIndex(t *testing.T) {
	dir := t.TempDir()
	g := &Globals{Root: filepath.Join(dir, "store"), Outbox: filepath.Join(dir, "outbox.db"), IDScheme: "concat"}

	_, err := newApp(context.Background(), g, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorContains(t, err, "--outbox requires --index")
}
