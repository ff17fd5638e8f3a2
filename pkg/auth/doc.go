// Package auth handles registration, login and token issuance.
//
// # Passwords
//
// Passwords are hashed with bcrypt at BcryptCost. Hashing and comparison run
// through a PasswordHasher that bounds how many run at once, so a burst of
// logins cannot monopolize the CPU:
//
//	hasher := auth.NewPasswordHasher(auth.BcryptCost, runtime.NumCPU(), metrics)
//	hash, err := hasher.Hash(ctx, "s3cret!")
//
// # Tokens
//
// Tokens are HS256 JWTs carrying the user id (sub), username and role name:
//
//	issuer, err := auth.NewJWTIssuer(secret, 24*time.Hour)
//	token, expiresAt, err := issuer.Issue(auth.NewClaims(user.ID, user.Username, user.RoleName))
//	claims, err := issuer.Verify(token)
//
// The role claim is informational. Authorization always reads the current
// role and permissions from the database.
//
// # Service
//
// Service.Register creates a user with the configured default role.
// Service.Login returns ErrInvalidCredentials for both an unknown username and a
// wrong password, and runs a bcrypt comparison in both cases. Logout is
// stateless: tokens simply expire.
package auth
