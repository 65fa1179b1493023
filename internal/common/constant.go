package common

// Issuer is the "iss" claim stamped on every session token.
const Issuer = "ta-system"

// TokenType is returned alongside access tokens from the login endpoint.
const TokenType = "bearer"

// StateBytes is the amount of entropy behind a CSRF state value (256 bits).
const StateBytes = 32
