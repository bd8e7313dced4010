// Package auth provides credential issuance and validation for Casement Core.
//
// It implements a two-class credential model (access → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Signed JWT credentials whose hashes live in a persistent token ledger
//   - Ledger-driven revocation and expiry (signature alone is never enough)
//   - Best-effort last-used stamping on every successful validation
//
// Admin credentials have no owning user account; the embedded device
// authenticates with one. Access credentials belong to registered users
// and gate observer connections to the relay.
package auth
