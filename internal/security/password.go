// Package security hashes and verifies user passwords.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, chosen to match the donor's own
// Params::new(15000, 2, 1, None): 15000 KiB memory, 2 iterations, single
// lane.
const (
	argonMemoryKiB  = 15000
	argonIterations = 2
	argonThreads    = 1
	argonKeyLen     = 32
	argonSaltLen    = 16
)

// HashPassword derives an Argon2id hash and encodes it in PHC string
// format: $argon2id$v=19$m=...,t=...,p=...$salt$hash.
//
// Hashing runs on its own goroutine and recovers any panic, mirroring
// the donor's spawn_blocking + panic-to-InvalidCredentials boundary,
// since argon2.IDKey allocates memory proportional to argonMemoryKiB
// and a panic there must not take the caller down with it.
func HashPassword(password string) (hash string, err error) {
	type result struct {
		hash string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic in HashPassword: %v", r)}
			}
		}()

		salt := make([]byte, argonSaltLen)
		if _, err := rand.Read(salt); err != nil {
			done <- result{err: fmt.Errorf("generate salt: %w", err)}
			return
		}

		sum := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonThreads, argonKeyLen)
		encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
			argonMemoryKiB, argonIterations, argonThreads,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(sum),
		)
		done <- result{hash: encoded}
	}()

	r := <-done
	return r.hash, r.err
}

// VerifyPassword reports whether password matches the PHC-encoded
// hash. Any parse failure or panic during verification is treated as
// a non-match rather than propagated, so callers can map it straight
// to domain.ErrInvalidCredentials without inspecting the error.
func VerifyPassword(hash, password string) bool {
	type result struct{ ok bool }
	done := make(chan result, 1)

	go func() {
		defer func() {
			if recover() != nil {
				done <- result{ok: false}
			}
		}()

		params, salt, want, err := decodePHC(hash)
		if err != nil {
			done <- result{ok: false}
			return
		}

		got := argon2.IDKey([]byte(password), salt, params.iterations, params.memoryKiB, params.threads, uint32(len(want)))
		done <- result{ok: subtle.ConstantTimeCompare(got, want) == 1}
	}()

	return (<-done).ok
}

type phcParams struct {
	memoryKiB  uint32
	iterations uint32
	threads    uint8
}

func decodePHC(encoded string) (phcParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return phcParams{}, nil, nil, fmt.Errorf("unrecognized hash format")
	}

	var p phcParams
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("parse version: %w", err)
	}

	var m, t int
	var par int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("parse params: %w", err)
	}
	p.memoryKiB, p.iterations, p.threads = uint32(m), uint32(t), uint8(par)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("decode hash: %w", err)
	}
	return p, salt, sum, nil
}
