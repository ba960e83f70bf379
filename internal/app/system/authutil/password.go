// internal/app/system/authutil/password.go
//
// Package authutil holds password policy and hashing.
package authutil

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password policy constants
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores everything after 72 bytes
	BcryptCost        = 12

	// TemporaryPasswordLength is the length of generated reset passwords.
	TemporaryPasswordLength = 14
)

// Password validation errors
var (
	ErrPasswordTooShort  = errors.New("Password must be at least 8 characters.")
	ErrPasswordTooLong   = errors.New("Password must be at most 72 bytes.")
	ErrPasswordCommon    = errors.New("This password is too common. Please choose a different one.")
	ErrPasswordUnchanged = errors.New("The new password must differ from the current one.")
)

// commonPasswords is a list of very common passwords that are blocked.
var commonPasswords = map[string]bool{
	"12345678":   true,
	"123456789":  true,
	"1234567890": true,
	"password":   true,
	"password1":  true,
	"qwertyuiop": true,
	"qwerty123":  true,
	"11111111":   true,
	"00000000":   true,
	"iloveyou":   true,
	"sunshine":   true,
	"princess":   true,
	"football":   true,
	"baseball":   true,
	"superman":   true,
	"letmein1":   true,
	"welcome1":   true,
	"changeme":   true,
	"admin123":   true,
}

// temporaryAlphabet leaves out characters that are easy to misread.
const temporaryAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PasswordRules returns a human-readable description of the password rules.
func PasswordRules() string {
	return "Password must be 8 to 72 characters and cannot be a common password like \"12345678\" or \"password\"."
}

// ValidatePassword checks if a password meets the requirements.
// Returns nil if valid, or an error describing the issue.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword hashes a password using bcrypt at BcryptCost.
// The password should be validated with ValidatePassword first.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, BcryptCost)
}

// HashPasswordCost hashes a password at an explicit bcrypt cost.
func HashPasswordCost(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plain-text password with a bcrypt hash.
// Returns true if the password matches, false otherwise.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateTemporaryPassword returns a random password for administrative
// resets. It always passes ValidatePassword.
func GenerateTemporaryPassword() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(temporaryAlphabet)))
	for i := 0; i < TemporaryPasswordLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(temporaryAlphabet[n.Int64()])
	}
	return b.String(), nil
}
