package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher wraps bcrypt hashing so services never touch the raw cost parameter.
type PasswordHasher struct{}

// NewPasswordHasher returns a hasher using the bcrypt default cost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// Hash derives a bcrypt hash for the plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Compare checks a plaintext password against a stored hash.
func (h *PasswordHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
