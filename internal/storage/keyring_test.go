package storage

import (
	"context"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringGetSetClear(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	k, err := NewKeyring("tokenmanager-test", "alice")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	if _, ok, _ := k.GetItem(ctx, ""); ok {
		t.Fatal("expected absent before first write")
	}

	if err := k.SetItem(ctx, "", `{"idToken":"x"}`); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	v, ok, err := k.GetItem(ctx, "")
	if err != nil || !ok || v != `{"idToken":"x"}` {
		t.Fatalf("GetItem() = (%q, %v, %v)", v, ok, err)
	}

	if err := k.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := k.GetItem(ctx, ""); ok {
		t.Fatal("expected absent after Clear")
	}
}

func TestKeyringRemoveItemDelegatesToClear(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	k, err := NewKeyring("tokenmanager-test", "bob")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	if err := k.SetItem(ctx, "", "value"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	if err := k.RemoveItem(ctx, "anything"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, ok, _ := k.GetItem(ctx, ""); ok {
		t.Fatal("expected absent after RemoveItem")
	}
}

func TestKeyringProbeSucceedsAgainstMockBackend(t *testing.T) {
	keyring.MockInit()

	k, err := NewKeyring("tokenmanager-test", "carol")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if err := k.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestKeyringIsNotKeyed(t *testing.T) {
	k, err := NewKeyring("tokenmanager-test", "dave")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if k.Keyed() {
		t.Fatal("keyring backend is a blob backend, Keyed() should be false")
	}
}

func TestNewKeyringRejectsEmptyServiceOrUser(t *testing.T) {
	if _, err := NewKeyring("", "user"); err == nil {
		t.Fatal("expected error for empty service")
	}
	if _, err := NewKeyring("service", ""); err == nil {
		t.Fatal("expected error for empty user")
	}
}
