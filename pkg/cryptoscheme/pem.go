// Copyright 2025 Certen Protocol
//
// PEM Key I/O - DER SPKI public keys and PKCS#8 private keys,
// 64-column base64 wrapping with conventional delimiters

package cryptoscheme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	pemTypePublicKey  = "PUBLIC KEY"
	pemTypePrivateKey = "PRIVATE KEY"
)

// encodePublicKeyPEM marshals pub as DER SubjectPublicKeyInfo inside a
// PEM block. encoding/pem wraps the base64 body at 64 columns.
func encodePublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptoscheme: marshal SPKI: %w", err)
	}
	block := &pem.Block{Type: pemTypePublicKey, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// encodePrivateKeyPEM marshals priv as DER PKCS#8 inside a PEM block.
func encodePrivateKeyPEM(priv crypto.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("cryptoscheme: marshal PKCS#8: %w", err)
	}
	block := &pem.Block{Type: pemTypePrivateKey, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM parses a PEM SPKI public key and reports which scheme
// the key belongs to.
func ParsePublicKeyPEM(pemText string) (crypto.PublicKey, Scheme, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, "", fmt.Errorf("%w: no PEM block found", ErrInvalidPEM)
	}
	if block.Type != pemTypePublicKey {
		return nil, "", fmt.Errorf("%w: unexpected block type %q", ErrInvalidPEM, block.Type)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k, SchemeRSAPSS, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, "", fmt.Errorf("%w: ECDSA curve %s is not P-256", ErrInvalidPEM, k.Curve.Params().Name)
		}
		return k, SchemeECDSAP256, nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported key type %T", ErrInvalidPEM, pub)
	}
}

// NewFromPrivatePEM parses a PEM PKCS#8 private key and returns the matching
// strategy. The scheme is detected from the key type.
func NewFromPrivatePEM(pemText string) (Strategy, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPEM)
	}
	if block.Type != pemTypePrivateKey {
		return nil, fmt.Errorf("%w: unexpected block type %q", ErrInvalidPEM, block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return NewRSAPSSStrategyFromKey(k)
	case *ecdsa.PrivateKey:
		return NewECDSAStrategyFromKey(k)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidPEM, priv)
	}
}
