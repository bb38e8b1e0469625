// Package credential hashes and verifies account passwords.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext.
	ErrEmptyPassword = errors.New("credential: empty password")
	// ErrPasswordTooLong is returned when the plaintext exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("credential: password too long")
)

// Hasher hashes plaintext passwords and checks them against stored tokens.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, token string) bool
	NeedsRehash(token string) bool
}

// Bcrypt implements Hasher with bcrypt. The algorithm version, cost and salt
// are embedded in every token, so tokens produced under an older cost keep
// verifying after the cost is raised.
type Bcrypt struct {
	cost int
}

// NewBcrypt builds a bcrypt hasher. A cost of zero selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Cost reports the work factor used for new hashes.
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash returns a salted bcrypt token for plaintext.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches token. Malformed tokens never match.
func (b *Bcrypt) Verify(plaintext, token string) bool {
	if plaintext == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(token), []byte(plaintext)) == nil
}

// NeedsRehash reports whether token was produced with different parameters
// than the ones currently configured.
func (b *Bcrypt) NeedsRehash(token string) bool {
	cost, err := bcrypt.Cost([]byte(token))
	if err != nil {
		return true
	}
	return cost != b.cost
}

var _ Hasher = (*Bcrypt)(nil)
