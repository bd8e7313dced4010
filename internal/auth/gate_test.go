package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGate(t *testing.T) (*Gate, *SQLiteTokenLedger) {
	t.Helper()

	db := testDB(t)

	// Access tokens reference their owner; the ledger schema enforces it.
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.Exec(
		"INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"usr-1", "gateuser", "unused", now, now,
	); err != nil {
		t.Fatalf("seeding gate test user: %v", err)
	}

	ledger := NewTokenLedger(db)
	return NewGate(ledger, testSecret), ledger
}

func TestGate_IssueAndValidate(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	raw, issued, err := gate.Issue(ctx, "usr-1", TokenTypeAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if raw == "" {
		t.Fatal("Issue() returned empty credential")
	}
	if issued.TokenHash != HashToken(raw) {
		t.Error("ledger row hash does not match issued credential")
	}

	identity, err := gate.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.UserID != "usr-1" {
		t.Errorf("UserID = %q, want %q", identity.UserID, "usr-1")
	}
	if identity.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %q, want %q", identity.TokenType, TokenTypeAccess)
	}
}

func TestGate_ValidateStampsLastUsed(t *testing.T) {
	gate, ledger := newTestGate(t)
	ctx := context.Background()

	raw, _, err := gate.Issue(ctx, "usr-1", TokenTypeAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := gate.Validate(ctx, raw); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	row, err := ledger.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if row.LastUsedAt == nil {
		t.Error("LastUsedAt should be stamped after successful validation")
	}
}

func TestGate_ValidateMalformed(t *testing.T) {
	gate, _ := newTestGate(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Validate(context.Background(), tt.raw)
			if !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("Validate() error = %v, want ErrTokenMalformed", err)
			}
		})
	}
}

func TestGate_ValidateWrongSecret(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	// A structurally valid token signed with a different secret must be
	// reported as malformed, not unrecognised.
	raw, _, err := GenerateToken("usr-1", TokenTypeAccess, "another-secret-0123456789abcdef012345", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	_, err = gate.Validate(ctx, raw)
	if !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("Validate() error = %v, want ErrTokenMalformed", err)
	}
}

func TestGate_ValidateUnrecognized(t *testing.T) {
	gate, _ := newTestGate(t)

	// Correctly signed but never recorded in the ledger.
	raw, _, err := GenerateToken("usr-1", TokenTypeAccess, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	_, err = gate.Validate(context.Background(), raw)
	if !errors.Is(err, ErrTokenUnrecognized) {
		t.Errorf("Validate() error = %v, want ErrTokenUnrecognized", err)
	}
}

func TestGate_ValidateAfterRevoke(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	raw, issued, err := gate.Issue(ctx, "usr-1", TokenTypeAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := gate.Revoke(ctx, issued.TokenHash); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	_, err = gate.Validate(ctx, raw)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Validate() after revoke error = %v, want ErrTokenRevoked", err)
	}
}

func TestGate_RevokedBeatsExpired(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	// A credential that is both revoked and expired must report Revoked:
	// precedence walks revocation before expiry.
	raw, issued, err := gate.Issue(ctx, "usr-1", TokenTypeAccess, -time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := gate.Revoke(ctx, issued.TokenHash); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	_, err = gate.Validate(ctx, raw)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Validate() error = %v, want ErrTokenRevoked", err)
	}
}

func TestGate_ZeroTTLExpiredAtIssuance(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	raw, _, err := gate.Issue(ctx, "usr-1", TokenTypeAccess, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = gate.Validate(ctx, raw)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Validate() of zero-TTL credential error = %v, want ErrTokenExpired", err)
	}
}

func TestGate_IssueAdminCredential(t *testing.T) {
	gate, ledger := newTestGate(t)
	ctx := context.Background()

	raw, issued, err := gate.Issue(ctx, "", TokenTypeAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.OwnerID != "" {
		t.Errorf("OwnerID = %q, want empty for admin credential", issued.OwnerID)
	}

	identity, err := gate.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.TokenType != TokenTypeAdmin {
		t.Errorf("TokenType = %q, want %q", identity.TokenType, TokenTypeAdmin)
	}

	row, err := ledger.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if row.OwnerID != "" {
		t.Errorf("ledger OwnerID = %q, want empty", row.OwnerID)
	}
}

func TestGate_IssueInvalidType(t *testing.T) {
	gate, _ := newTestGate(t)

	_, _, err := gate.Issue(context.Background(), "usr-1", TokenType("superuser"), time.Hour)
	if !errors.Is(err, ErrIssuance) {
		t.Errorf("Issue() error = %v, want ErrIssuance", err)
	}
}

// failingLedger simulates ledger persistence failure during issuance.
type failingLedger struct {
	TokenLedger
}

func (f *failingLedger) Create(_ context.Context, _ *IssuedToken) error {
	return errors.New("disk full")
}

func TestGate_IssueLedgerFailure(t *testing.T) {
	gate := NewGate(&failingLedger{}, testSecret)

	raw, _, err := gate.Issue(context.Background(), "usr-1", TokenTypeAccess, time.Hour)
	if !errors.Is(err, ErrIssuance) {
		t.Errorf("Issue() error = %v, want ErrIssuance", err)
	}
	if raw != "" {
		t.Error("credential must not be exposed when ledger persistence fails")
	}
}
