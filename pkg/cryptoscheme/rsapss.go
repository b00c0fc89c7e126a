// Copyright 2025 Certen Protocol
//
// RSA-PSS Strategy - 3072-bit modulus, MGF1/SHA-256, 32-byte salt

package cryptoscheme

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// rsaModulusBits is the fixed modulus size for generated keys.
	rsaModulusBits = 3072

	// rsaSaltLength is the fixed PSS salt length in bytes.
	rsaSaltLength = 32
)

// rsaPSSOptions returns the PSS parameters shared by signing and verification.
func rsaPSSOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{
		SaltLength: rsaSaltLength,
		Hash:       crypto.SHA256,
	}
}

// RSAPSSStrategy signs history entries with RSA-PSS over SHA-256.
type RSAPSSStrategy struct {
	privateKey *rsa.PrivateKey
}

// NewRSAPSSStrategy generates a fresh 3072-bit key pair.
func NewRSAPSSStrategy() (*RSAPSSStrategy, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaModulusBits)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa keygen: %v", ErrSigning, err)
	}
	return &RSAPSSStrategy{privateKey: key}, nil
}

// NewRSAPSSStrategyFromKey wraps an existing private key.
func NewRSAPSSStrategyFromKey(key *rsa.PrivateKey) (*RSAPSSStrategy, error) {
	if key == nil {
		return nil, errors.New("cryptoscheme: nil RSA private key")
	}
	return &RSAPSSStrategy{privateKey: key}, nil
}

// Scheme returns the scheme identifier.
func (s *RSAPSSStrategy) Scheme() Scheme {
	return SchemeRSAPSS
}

// Sign signs data (hashed internally with SHA-256).
func (s *RSAPSSStrategy) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest[:], rsaPSSOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: rsa-pss: %v", ErrSigning, err)
	}
	return sig, nil
}

// Verify verifies sig over data against this strategy's public key.
func (s *RSAPSSStrategy) Verify(data, sig []byte) (bool, error) {
	return verifyRSAPSS(&s.privateKey.PublicKey, data, sig)
}

// PublicKey returns the RSA public key.
func (s *RSAPSSStrategy) PublicKey() crypto.PublicKey {
	return &s.privateKey.PublicKey
}

// ExportPublicPEM returns the public key as a PEM SPKI block.
func (s *RSAPSSStrategy) ExportPublicPEM() (string, error) {
	return encodePublicKeyPEM(&s.privateKey.PublicKey)
}

// ExportPrivatePEM returns the private key as a PEM PKCS#8 block.
func (s *RSAPSSStrategy) ExportPrivatePEM() (string, error) {
	return encodePrivateKeyPEM(s.privateKey)
}

// verifyRSAPSS is the scheme-level verification shared with VerifyDetached.
func verifyRSAPSS(pub crypto.PublicKey, data, sig []byte) (bool, error) {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("cryptoscheme: key type %T does not match %s", pub, SchemeRSAPSS)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(rsaPub, crypto.SHA256, digest[:], sig, rsaPSSOptions()); err != nil {
		return false, nil
	}
	return true, nil
}
