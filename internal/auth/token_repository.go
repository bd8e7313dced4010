package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenLedger defines the interface for issued-credential persistence.
//
// The ledger is a pure storage abstraction: it records the hash, type,
// expiry, and revocation flag of every credential ever issued. The
// session Gate consumes it; nothing else writes to it.
type TokenLedger interface {
	Create(ctx context.Context, token *IssuedToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*IssuedToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	MarkUsed(ctx context.Context, id string) error
	ListActiveByOwner(ctx context.Context, ownerID string) ([]IssuedToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenLedger implements TokenLedger using SQLite.
type SQLiteTokenLedger struct {
	db *sql.DB
}

// NewTokenLedger creates a new SQLite-backed token ledger.
func NewTokenLedger(db *sql.DB) *SQLiteTokenLedger {
	return &SQLiteTokenLedger{db: db}
}

// HashToken computes the SHA-256 hash of a raw credential for storage.
// Raw credentials are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Create inserts a new ledger row. The ID is generated if empty.
func (l *SQLiteTokenLedger) Create(ctx context.Context, token *IssuedToken) error {
	if token.ID == "" {
		token.ID = "tok-" + uuid.NewString()[:16]
	}
	if token.TokenType == "" {
		token.TokenType = TokenTypeAccess
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO issued_tokens (id, token_hash, owner_id, token_type, issued_at, expires_at, revoked, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		token.ID, token.TokenHash, nullString(token.OwnerID), string(token.TokenType),
		token.IssuedAt.UTC().Format(time.RFC3339),
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked),
	)
	if err != nil {
		return fmt.Errorf("creating ledger row: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a ledger row by the credential's SHA-256 hash.
// A missing row is reported as ErrTokenUnrecognized.
func (l *SQLiteTokenLedger) GetByTokenHash(ctx context.Context, tokenHash string) (*IssuedToken, error) {
	var t IssuedToken
	var ownerID, lastUsedAt sql.NullString
	var tokenType string
	var revoked int
	var issuedAt, expiresAt string

	err := l.db.QueryRowContext(ctx,
		`SELECT id, token_hash, owner_id, token_type, issued_at, expires_at, revoked, last_used_at
		 FROM issued_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&t.ID, &t.TokenHash, &ownerID, &tokenType,
		&issuedAt, &expiresAt, &revoked, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenUnrecognized
		}
		return nil, fmt.Errorf("getting ledger row by hash: %w", err)
	}

	t.TokenType = TokenType(tokenType)
	t.Revoked = revoked != 0
	if ownerID.Valid {
		t.OwnerID = ownerID.String
	}
	t.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)   //nolint:errcheck // format is controlled
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	if lastUsedAt.Valid {
		parsed, _ := time.Parse(time.RFC3339, lastUsedAt.String) //nolint:errcheck // format is controlled
		t.LastUsedAt = &parsed
	}

	return &t, nil
}

// Revoke marks the ledger row for a credential hash as revoked.
//
// Idempotent: revoking an already-revoked or nonexistent hash is a
// no-op, not an error.
func (l *SQLiteTokenLedger) Revoke(ctx context.Context, tokenHash string) error {
	_, err := l.db.ExecContext(ctx,
		"UPDATE issued_tokens SET revoked = 1 WHERE token_hash = ?", tokenHash)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// MarkUsed stamps last_used_at on a ledger row.
// Called best-effort after each successful validation.
func (l *SQLiteTokenLedger) MarkUsed(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := l.db.ExecContext(ctx,
		"UPDATE issued_tokens SET last_used_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("marking token used: %w", err)
	}
	return nil
}

// ListActiveByOwner returns all non-revoked, non-expired credentials for a user.
func (l *SQLiteTokenLedger) ListActiveByOwner(ctx context.Context, ownerID string) ([]IssuedToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, token_hash, owner_id, token_type, issued_at, expires_at, revoked, last_used_at
		 FROM issued_tokens
		 WHERE owner_id = ? AND revoked = 0 AND expires_at > ?
		 ORDER BY issued_at DESC`, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []IssuedToken
	for rows.Next() {
		var t IssuedToken
		var owner, lastUsedAt sql.NullString
		var tokenType string
		var revoked int
		var issuedAt, expiresAt string

		if err := rows.Scan(&t.ID, &t.TokenHash, &owner, &tokenType,
			&issuedAt, &expiresAt, &revoked, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}

		t.TokenType = TokenType(tokenType)
		t.Revoked = revoked != 0
		if owner.Valid {
			t.OwnerID = owner.String
		}
		t.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)   //nolint:errcheck // format is controlled
		t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
		if lastUsedAt.Valid {
			parsed, _ := time.Parse(time.RFC3339, lastUsedAt.String) //nolint:errcheck // format is controlled
			t.LastUsedAt = &parsed
		}

		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger rows: %w", err)
	}

	if tokens == nil {
		tokens = []IssuedToken{}
	}
	return tokens, nil
}

// DeleteExpired removes ledger rows whose expiry has passed, freeing storage.
// Returns the number of deleted rows.
func (l *SQLiteTokenLedger) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := l.db.ExecContext(ctx,
		"DELETE FROM issued_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
