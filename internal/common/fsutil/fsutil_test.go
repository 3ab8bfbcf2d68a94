package fsutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	// absolute and empty paths pass through untouched
	if got, err := ExpandHome("/etc/tianshand.yaml"); err != nil || got != "/etc/tianshand.yaml" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}

	if got, err := ExpandHome("~"); err != nil || got != home {
		t.Fatalf("bare tilde: got %q err=%v, want %q", got, err, home)
	}

	got, err := ExpandHome("~/tianshand.yaml")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if want := filepath.Join(home, "tianshand.yaml"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	if !PathExists(dir) {
		t.Fatal("existing dir reported missing")
	}
	if PathExists(filepath.Join(dir, "nope")) {
		t.Fatal("missing path reported present")
	}
}
