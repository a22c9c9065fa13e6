package auth

import "golang.org/x/crypto/bcrypt"

// dummyHash is a well-formed bcrypt digest of a throwaway value. Comparing
// against it keeps the bcrypt work factor in play on the unknown-email path.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// PasswordHasher derives and verifies irreversible password digests.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher at the default bcrypt cost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcrypt.DefaultCost}
}

// Hash derives a salted digest from the raw password.
func (h *PasswordHasher) Hash(rawPassword string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(rawPassword), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Compare reports whether the raw password matches the stored digest.
func (h *PasswordHasher) Compare(storedHash, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(rawPassword)) == nil
}

// CompareDummy burns one bcrypt verification against a fixed digest so the
// caller's failure path costs the same whether or not the account exists.
func (h *PasswordHasher) CompareDummy(rawPassword string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(rawPassword))
}
