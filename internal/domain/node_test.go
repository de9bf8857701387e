package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/krist-node/gateway/internal/db"
	"github.com/krist-node/gateway/internal/model"
	"github.com/krist-node/gateway/internal/repository"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewNode(
		repository.NewAddressRepository(database),
		repository.NewTransactionRepository(database),
	)
}

func TestWorkDefault(t *testing.T) {
	node := newTestNode(t)

	work, err := node.Work(context.Background())
	if err != nil {
		t.Fatalf("Work returned error: %v", err)
	}
	if work != 69420 {
		t.Errorf("expected default work 69420, got %d", work)
	}

	node.SetWork(12345)
	work, _ = node.Work(context.Background())
	if work != 12345 {
		t.Errorf("expected work 12345 after SetWork, got %d", work)
	}
}

func TestMOTD(t *testing.T) {
	node := newTestNode(t)

	motd, err := node.MOTD(context.Background())
	if err != nil {
		t.Fatalf("MOTD returned error: %v", err)
	}
	if motd == "" {
		t.Error("expected a default MOTD")
	}

	node.SetMOTD("maintenance tonight")
	motd, _ = node.MOTD(context.Background())
	if motd != "maintenance tonight" {
		t.Errorf("expected updated MOTD, got %q", motd)
	}
}

func TestLoginCreatesAddressOnce(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	first, err := node.Login(ctx, "super-secret")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	if first.Address != DeriveAddress("super-secret") {
		t.Errorf("login returned unexpected address %s", first.Address)
	}

	second, err := node.Login(ctx, "super-secret")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.Address != first.Address {
		t.Errorf("login is not stable: %s != %s", second.Address, first.Address)
	}
}

func TestLoginRejectsEmptyKey(t *testing.T) {
	node := newTestNode(t)

	if _, err := node.Login(context.Background(), ""); !errors.Is(err, model.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey, got %v", err)
	}
}

func TestMakeTransactionFlow(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	if _, err := node.Login(ctx, "sender-key"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A fresh address has no balance, so a transfer must fail.
	_, err := node.MakeTransaction(ctx, "sender-key", "k1receiver", 10, "")
	if !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Unknown private keys are rejected outright.
	_, err = node.MakeTransaction(ctx, "never-logged-in", "k1receiver", 10, "")
	if !errors.Is(err, model.ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
}

func TestAddressLookupWithNames(t *testing.T) {
	node := newTestNode(t)
	ctx := context.Background()

	created, err := node.Login(ctx, "named-key")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	addr, err := node.Address(ctx, created.Address, false)
	if err != nil {
		t.Fatalf("address lookup failed: %v", err)
	}
	if addr.NamesOwned != nil {
		t.Error("expected no name count without fetchNames")
	}

	addr, err = node.Address(ctx, created.Address, true)
	if err != nil {
		t.Fatalf("address lookup with names failed: %v", err)
	}
	if addr.NamesOwned == nil || *addr.NamesOwned != 0 {
		t.Errorf("expected name count 0, got %v", addr.NamesOwned)
	}

	if _, err := node.Address(ctx, "k0missing0", false); !errors.Is(err, model.ErrAddressNotFound) {
		t.Errorf("expected ErrAddressNotFound, got %v", err)
	}
}
