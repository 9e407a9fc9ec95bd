// Package auth issues opaque bearer tokens and resolves them to members.
//
// Tokens look like skc_<base64url(32 random bytes)>. Only the SHA-256 hash is
// stored; the plaintext is returned once when the token is issued.
//
//	issued, member, err := manager.Login(ctx, email, password)
//	caller, err := manager.ResolveCaller(ctx, issued.Token)
//
// ResolveCaller fails with an Unauthenticated error for a missing, malformed,
// unknown, revoked or expired token, and for a member who is no longer ACTIVE.
// The resolved member is passed explicitly to every core operation.
package auth
