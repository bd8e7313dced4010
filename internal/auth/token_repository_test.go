package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenLedger_CreateAndGetByHash(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "ledgeruser")
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	token := &IssuedToken{
		TokenHash: HashToken("raw-credential"),
		OwnerID:   user.ID,
		TokenType: TokenTypeAccess,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	if err := ledger.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if token.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	got, err := ledger.GetByTokenHash(ctx, HashToken("raw-credential"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}

	if got.OwnerID != user.ID {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, user.ID)
	}
	if got.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %q, want %q", got.TokenType, TokenTypeAccess)
	}
	if got.Revoked {
		t.Error("new ledger row should not be revoked")
	}
	if got.LastUsedAt != nil {
		t.Error("new ledger row should have no last-used stamp")
	}
}

func TestTokenLedger_GetByHashUnrecognized(t *testing.T) {
	db := testDB(t)
	ledger := NewTokenLedger(db)

	_, err := ledger.GetByTokenHash(context.Background(), HashToken("never-issued"))
	if !errors.Is(err, ErrTokenUnrecognized) {
		t.Errorf("GetByTokenHash() error = %v, want ErrTokenUnrecognized", err)
	}
}

func TestTokenLedger_AdminTokenHasNoOwner(t *testing.T) {
	db := testDB(t)
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	token := &IssuedToken{
		TokenHash: HashToken("admin-credential"),
		TokenType: TokenTypeAdmin,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	if err := ledger.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := ledger.GetByTokenHash(ctx, HashToken("admin-credential"))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.OwnerID != "" {
		t.Errorf("OwnerID = %q, want empty for admin credential", got.OwnerID)
	}
}

func TestTokenLedger_Revoke(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "revokeuser")
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	hash := HashToken("revoke-me")
	token := &IssuedToken{
		TokenHash: hash,
		OwnerID:   user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := ledger.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := ledger.Revoke(ctx, hash); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, err := ledger.GetByTokenHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if !got.Revoked {
		t.Error("ledger row should be revoked")
	}

	// Idempotent: revoking again and revoking an unknown hash both succeed.
	if err := ledger.Revoke(ctx, hash); err != nil {
		t.Errorf("Revoke() second call error = %v, want nil", err)
	}
	if err := ledger.Revoke(ctx, HashToken("never-issued")); err != nil {
		t.Errorf("Revoke() unknown hash error = %v, want nil", err)
	}
}

func TestTokenLedger_MarkUsed(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "markuser")
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	hash := HashToken("stamp-me")
	token := &IssuedToken{
		TokenHash: hash,
		OwnerID:   user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := ledger.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := ledger.MarkUsed(ctx, token.ID); err != nil {
		t.Fatalf("MarkUsed() error = %v", err)
	}

	got, err := ledger.GetByTokenHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.LastUsedAt == nil {
		t.Fatal("LastUsedAt should be set after MarkUsed")
	}
}

func TestTokenLedger_ListActiveByOwner(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "listuser")
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	active := &IssuedToken{
		TokenHash: HashToken("active"),
		OwnerID:   user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	expired := &IssuedToken{
		TokenHash: HashToken("expired"),
		OwnerID:   user.ID,
		IssuedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	revoked := &IssuedToken{
		TokenHash: HashToken("revoked"),
		OwnerID:   user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Revoked:   true,
	}

	for _, tok := range []*IssuedToken{active, expired, revoked} {
		if err := ledger.Create(ctx, tok); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tokens, err := ledger.ListActiveByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListActiveByOwner() error = %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("ListActiveByOwner() returned %d tokens, want 1", len(tokens))
	}
	if tokens[0].TokenHash != active.TokenHash {
		t.Errorf("active token hash = %q, want %q", tokens[0].TokenHash, active.TokenHash)
	}
}

func TestTokenLedger_DeleteExpired(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "cleanupuser")
	ledger := NewTokenLedger(db)
	ctx := context.Background()

	keep := &IssuedToken{
		TokenHash: HashToken("keep"),
		OwnerID:   user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	stale := &IssuedToken{
		TokenHash: HashToken("stale"),
		OwnerID:   user.ID,
		IssuedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	for _, tok := range []*IssuedToken{keep, stale} {
		if err := ledger.Create(ctx, tok); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	count, err := ledger.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("DeleteExpired() removed %d rows, want 1", count)
	}

	if _, err := ledger.GetByTokenHash(ctx, HashToken("keep")); err != nil {
		t.Errorf("unexpired token should survive cleanup, got error %v", err)
	}
	if _, err := ledger.GetByTokenHash(ctx, HashToken("stale")); !errors.Is(err, ErrTokenUnrecognized) {
		t.Errorf("expired token should be gone, got error %v", err)
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("credential-a")
	b := HashToken("credential-b")

	if a == b {
		t.Error("distinct inputs should hash differently")
	}
	if a != HashToken("credential-a") {
		t.Error("hashing is not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
