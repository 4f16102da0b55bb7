// Package utils holds small helpers shared by the account handlers.
package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes an account password with bcrypt at default cost.
// Called once at registration; the hash is what the users table stores.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword reports whether plain matches the stored hash at login.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
