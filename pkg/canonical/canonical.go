// Copyright 2025 Certen Protocol
//
// Canonical JSON Package - deterministic serialization for signing and hashing
// Recursive key sort, no whitespace, array order and scalar text preserved

package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalRaw takes arbitrary JSON bytes and returns the canonical encoding:
// object keys sorted lexicographically at every depth, arrays kept in order,
// scalar values re-emitted with their original text. Numbers are decoded as
// json.Number so "1.3" stays "1.3" and never becomes "1.2999999999999998".
func MarshalRaw(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical: invalid JSON input: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal serializes v through encoding/json and canonicalizes the result.
// This is the single encoding used for both signing input and entry hashing;
// callers must not substitute a language-default serializer.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return MarshalRaw(raw)
}

// Hash returns the hex-lowercase SHA-256 of the canonical encoding of v.
func Hash(v interface{}) (string, error) {
	canon, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the hex-lowercase SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeCanonical recursively emits v with sorted keys and no whitespace.
func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical: encode key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, vv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []interface{}:
		buf.WriteByte('[')
		for i, e := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(vv.String())
		return nil

	case string:
		sb, err := json.Marshal(vv)
		if err != nil {
			return fmt.Errorf("canonical: encode string: %w", err)
		}
		buf.Write(sb)
		return nil

	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil

	case nil:
		buf.WriteString("null")
		return nil

	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
}
