// Package password hashes and verifies local account passwords with bcrypt.
//
// Hashes are salted and adaptive; the default work factor is 11. Verification
// never fails loudly: a malformed hash, or the sentinel hash stored on
// externally provisioned accounts, simply does not verify.
package password

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// DefaultCost is the bcrypt work factor used by [NewHasher].
const DefaultCost = 11

// MaxLength is the longest password bcrypt accepts, in bytes.
const MaxLength = 72

// Hasher hashes and verifies passwords. The zero value is not usable; create
// one with [NewHasher] or [NewHasherWithCost]. A Hasher is safe for
// concurrent use.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher with [DefaultCost].
func NewHasher() *Hasher {
	return &Hasher{cost: DefaultCost}
}

// NewHasherWithCost returns a Hasher with the given work factor. Tests use
// bcrypt.MinCost to stay fast.
func NewHasherWithCost(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, sserr.Validationf("password: cost %d is outside [%d, %d]",
			cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", sserr.Required("password")
	}
	if len(password) > MaxLength {
		return "", sserr.Newf(sserr.CodeValidationRange, "password must be at most %d bytes", MaxLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "password: failed to hash")
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. The comparison is constant
// time. Malformed hashes and [models.ExternalPasswordHash] return false.
func (h *Hasher) Verify(password, hash string) bool {
	if hash == "" || hash == models.ExternalPasswordHash {
		h.EqualizeTiming(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// EqualizeTiming performs a comparison against a fixed hash of the same cost
// and discards the result. Login calls it when the identifier is unknown so
// that the response time matches a wrong-password attempt.
func (h *Hasher) EqualizeTiming(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("equalize-login-timing"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
