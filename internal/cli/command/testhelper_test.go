package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

// cliFixture holds the directories one test run operates on.
type cliFixture struct {
	dataDir string
	blobDir string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	return &cliFixture{
		dataDir: filepath.Join(dir, "data"),
		blobDir: filepath.Join(dir, "blobs"),
	}
}

// run executes the CLI with the fixture's directories prepended. The
// exit handler is disabled so cli.Exit errors come back instead of
// terminating the test process.
func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	app := App()
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := []string{"lexsync",
		"--data-dir", f.dataDir,
		"--blob-dir", f.blobDir,
	}
	argv = append(argv, args...)
	return app.Run(argv)
}

// runCapture executes the CLI and returns everything written to stdout.
func (f *cliFixture) runCapture(t *testing.T, args ...string) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w

	runErr := f.run(t, args...)

	os.Stdout = saved
	w.Close()

	out := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	r.Close()
	return string(out), runErr
}

// readFile reads a file fully, failing the test on error.
func readFile(t *testing.T, path string) []byte {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return raw
}

// writeJSONFile marshals data into a file under the test temp dir.
func writeJSONFile(t *testing.T, dir, name string, data any) string {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0640); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
