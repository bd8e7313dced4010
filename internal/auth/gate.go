package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// markUsedTimeout bounds the best-effort last-used stamp so a slow
// database cannot stall validation.
const markUsedTimeout = 2 * time.Second

// Gate issues and validates session credentials against the token ledger.
//
// Every credential is a signed JWT whose SHA-256 hash is recorded in the
// ledger at issuance. Validation checks the signature first, then the
// ledger row: a credential is accepted only when the row exists, is not
// revoked, and has not expired, in that order of failure reporting.
type Gate struct {
	ledger TokenLedger
	secret string

	// logger receives best-effort failure reports (optional).
	logger interface{ Warn(msg string, args ...any) }
}

// NewGate creates a session gate backed by the given ledger.
func NewGate(ledger TokenLedger, secret string) *Gate {
	return &Gate{ledger: ledger, secret: secret}
}

// SetLogger sets an optional logger for best-effort side-effect failures.
func (g *Gate) SetLogger(logger interface{ Warn(msg string, args ...any) }) {
	g.logger = logger
}

// Issue produces a signed credential and persists its hash to the ledger
// as a single logical unit.
//
// ownerID is empty for admin credentials. A non-positive ttl yields a
// credential that is expired at issuance; it is still recorded.
// If ledger persistence fails the raw credential is never exposed to the
// caller and the call fails with ErrIssuance.
func (g *Gate) Issue(ctx context.Context, ownerID string, tokenType TokenType, ttl time.Duration) (string, *IssuedToken, error) {
	if !IsValidTokenType(tokenType) {
		return "", nil, fmt.Errorf("%w: unknown token type %q", ErrIssuance, tokenType)
	}

	raw, claims, err := GenerateToken(ownerID, tokenType, g.secret, ttl)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrIssuance, err)
	}

	token := &IssuedToken{
		TokenHash: HashToken(raw),
		OwnerID:   ownerID,
		TokenType: tokenType,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if err := g.ledger.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrIssuance, err)
	}

	return raw, token, nil
}

// Validate checks a presented credential and returns the identity behind it.
//
// Failures are reported in strict precedence order:
//  1. ErrTokenMalformed — signature or structure invalid
//  2. ErrTokenUnrecognized — hash absent from the ledger
//  3. ErrTokenRevoked — ledger row flagged revoked
//  4. ErrTokenExpired — expiry has passed
//
// On success the ledger row's last-used stamp is updated best-effort;
// a failure there is logged and never surfaced to the caller.
func (g *Gate) Validate(ctx context.Context, raw string) (*Identity, error) {
	if _, err := ParseToken(raw, g.secret); err != nil {
		return nil, err
	}

	row, err := g.ledger.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrTokenUnrecognized) {
			return nil, ErrTokenUnrecognized
		}
		return nil, fmt.Errorf("looking up credential: %w", err)
	}

	if row.Revoked {
		return nil, ErrTokenRevoked
	}

	if !time.Now().Before(row.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	markCtx, cancel := context.WithTimeout(ctx, markUsedTimeout)
	defer cancel()
	if err := g.ledger.MarkUsed(markCtx, row.ID); err != nil && g.logger != nil {
		g.logger.Warn("failed to stamp credential last-used", "error", err)
	}

	// The ledger row is authoritative for identity too: admin
	// credentials carry no owner even though their subject claim reads
	// "admin".
	return &Identity{UserID: row.OwnerID, TokenType: row.TokenType}, nil
}

// Revoke flags the ledger row for a credential hash as revoked.
//
// Idempotent: revoking an already-revoked or unknown hash succeeds.
func (g *Gate) Revoke(ctx context.Context, tokenHash string) error {
	return g.ledger.Revoke(ctx, tokenHash)
}
