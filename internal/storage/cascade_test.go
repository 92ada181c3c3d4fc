package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSelectUnrecognizedOption(t *testing.T) {
	_, err := Select(context.Background(), Option("bogus"), Params{})
	if err == nil {
		t.Fatal("expected error for unrecognized storage option")
	}
}

func TestSelectCascadeDowngradesOnUnavailableLocalStorage(t *testing.T) {
	// Put a plain file where the localStorage backend needs to create a
	// directory, so NewFile's MkdirAll deterministically fails (a
	// directory segment can't also be a file) regardless of the test
	// runner's privileges. This forces a downgrade to sessionStorage,
	// matching S2 in spec.md §8.
	dir := t.TempDir()
	obstruction := filepath.Join(dir, "obstruction")
	if err := os.WriteFile(obstruction, []byte("not a directory"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var warnings []string
	p := Params{
		StateDir: filepath.Join(obstruction, "state"),
		Warn:     func(msg string) { warnings = append(warnings, msg) },
	}

	b, err := Select(context.Background(), OptionLocalStorage, p)
	if err != nil {
		t.Fatalf("expected cascade to succeed via sessionStorage, got %v", err)
	}
	if b.Name() != "file" {
		t.Fatalf("expected file-backed sessionStorage fallback, got %s", b.Name())
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one downgrade warning, got %v", warnings)
	}
	want := "This browser doesn't support localStorage. Switching to sessionStorage."
	if warnings[0] != want {
		t.Fatalf("warning = %q, want %q", warnings[0], want)
	}
}

func TestSelectMemoryNeverCascades(t *testing.T) {
	b, err := Select(context.Background(), OptionMemory, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "memory" {
		t.Fatalf("expected memory backend, got %s", b.Name())
	}
}

func TestSelectCustomRequiresProvider(t *testing.T) {
	_, err := Select(context.Background(), OptionCustom, Params{})
	if err == nil {
		t.Fatal("expected error when Custom provider is nil")
	}
}

func TestSelectKeyringNeverCascades(t *testing.T) {
	keyring.MockInit()

	b, err := Select(context.Background(), OptionKeyring, Params{
		KeyringService: "tokenmanager-test",
		KeyringUser:    "select-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "keyring" {
		t.Fatalf("expected keyring backend, got %s", b.Name())
	}
}

func TestSelectKeyringRequiresServiceAndUser(t *testing.T) {
	keyring.MockInit()

	_, err := Select(context.Background(), OptionKeyring, Params{})
	if err == nil {
		t.Fatal("expected error when KeyringService/KeyringUser are empty")
	}
}
