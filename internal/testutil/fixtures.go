package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"runtime"
	"testing"
)

func root() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("error loading caller")
	}
	return path.Join(path.Dir(filename), "../../", "testdata")
}

// MustFixture loads a file from the testdata directory at the repository
// root. It panics when the file cannot be read.
func MustFixture(relPath string) []byte {
	p := path.Join(root(), relPath)
	blob, err := os.ReadFile(p)
	if err != nil {
		panic(fmt.Sprintf("error loading fixture %s: %v", p, err))
	}

	return blob
}

// Fixture loads a file from the testdata directory at the repository root.
func Fixture(t *testing.T, relPath string) []byte {
	t.Helper()

	p := path.Join(root(), relPath)
	blob, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("error loading fixture %s: %v", p, err)
	}

	return blob
}

// FixtureReader is Fixture wrapped in a seekable reader.
func FixtureReader(t *testing.T, relPath string) *bytes.Reader {
	t.Helper()

	return bytes.NewReader(Fixture(t, relPath))
}
