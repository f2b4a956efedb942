// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing,
// device fingerprinting) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SecurityContext binds a token to hashed attributes of the request that
// created its session. Raw IPs and user agents never appear in a token.
type SecurityContext struct {
	IPHash        string `json:"iph"`
	DeviceHash    string `json:"dfp"`
	Geo           string `json:"geo"`
	UserAgentHash string `json:"uah"`
}

// SecurityFlags carries the per-session security posture inside the token.
type SecurityFlags struct {
	MFACompleted    bool   `json:"mfa"`
	Biometric       bool   `json:"bio"`
	ProtectionLevel string `json:"dpl"`
	RiskScore       int    `json:"rsk"`
}

// AuthClaims is the payload embedded inside an access token.
//
// # Why custom claims?
//
// By embedding the tenant, roles, and per-resource permission map directly
// inside the token, downstream collaborators can authorize most requests
// WITHOUT querying the database. The permission map is a snapshot: it is
// only as fresh as the token's lifetime, which is why access tokens are
// short-lived.
//
// Claim names are abbreviated to keep the token payload small:
// brn = tenant (brokerage) id, sctx = security context, rls = role names,
// prv = resourceCode -> hex-encoded permission mask, cnd = contextual
// conditions, sec = security flags. jti doubles as the session id.
type AuthClaims struct {
	jwt.RegisteredClaims

	TenantID      string            `json:"brn"`
	Context       SecurityContext   `json:"sctx"`
	Roles         []string          `json:"rls"`
	PermissionMap map[string]string `json:"prv"`
	Conditions    []string          `json:"cnd,omitempty"`
	Security      SecurityFlags     `json:"sec"`
}

// SessionID returns the session this token is bound to (the jti claim).
func (c *AuthClaims) SessionID() string {
	return c.ID
}

// UserID returns the subject of the token.
func (c *AuthClaims) UserID() string {
	return c.Subject
}

// TokenService handles generation and verification of access tokens using RS256.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewTokenService creates a new TokenService.
// It reads RSA keys from the provided filesystem paths.
func NewTokenService(privateKeyPath, publicKeyPath, issuer string) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// NewTokenServiceFromKeys creates a TokenService from in-memory keys.
// Used by tests and by deployments that source keys from a secret manager.
func NewTokenServiceFromKeys(privateKey *rsa.PrivateKey, issuer string) *TokenService {
	return &TokenService{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
	}
}

// Sign fills in the registered claims and produces a signed token string.
//
// The caller supplies the domain payload (tenant, roles, permission map,
// security context); this method owns sub/iss/jti/iat/exp.
func (service *TokenService) Sign(userID, sessionID string, claims AuthClaims, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    service.issuer,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyToken checks the signature, expiry, and issuer of a token string.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	}, jwt.WithIssuer(service.issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}
