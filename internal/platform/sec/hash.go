// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Password Hashing

// HashPassword hashes a plain-text password using the bcrypt algorithm.
// bcrypt generates a fresh random salt on every call.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version
// in constant time.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// # Opaque Tokens

// GenerateSecureToken returns a URL-safe random token of byteLength entropy bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashRefreshToken computes the deterministic keyed hash under which a
// refresh token is stored and looked up.
//
// A randomized-salt hash (bcrypt-style) cannot be used here: the lookup must
// recompute the exact stored value from the presented token. HMAC-SHA256
// with a server-side key keeps the stored value useless to anyone who dumps
// the table without also holding the key.
func HashRefreshToken(rawToken string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(rawToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashAttribute computes the one-way hash used for request attributes
// (IP, user agent) that must never be stored or transported raw.
func HashAttribute(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
