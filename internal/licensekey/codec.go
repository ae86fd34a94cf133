// Package licensekey generates and validates offline license keys of the form
// HA-{TIER}-{P1}-{P2}, where the last character of P2 is a weighted checksum.
//
// The checksum catches typos and casual edits. It is not a signature: anyone who
// knows the algorithm can produce keys that validate.
package licensekey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/ha-billing/internal/domain"
)

const (
	Prefix     = "HA"
	partLength = 8
	alphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// largest multiple of len(alphabet) that fits in a byte, for unbiased sampling
	sampleCeiling = 252
)

type Tier string

const (
	TierBeta      Tier = "BETA"
	TierPremium   Tier = "PREMIUM"
	TierUnlimited Tier = "UNLIMITED"
)

var ErrUnknownTier = errors.New("unknown license tier")

func ParseTier(raw string) (Tier, error) {
	tier := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if !tier.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
	return tier, nil
}

func (t Tier) Valid() bool {
	switch t {
	case TierBeta, TierPremium, TierUnlimited:
		return true
	default:
		return false
	}
}

// Plan is the entitlement a tier grants. Every tier maps to beta; the extra
// names only exist so keys issued under the old naming keep working.
func (t Tier) Plan() domain.Plan {
	return domain.PlanBeta
}

type Generator struct {
	random io.Reader
}

func NewGenerator(random io.Reader) *Generator {
	if random == nil {
		random = rand.Reader
	}
	return &Generator{random: random}
}

func Generate(tier Tier) (string, error) {
	return NewGenerator(nil).Generate(tier)
}

func (g *Generator) Generate(tier Tier) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	first, err := g.randomString(partLength)
	if err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	body, err := g.randomString(partLength - 1)
	if err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}

	second := body + string(checksum(string(tier), first, body))
	return strings.Join([]string{Prefix, string(tier), first, second}, "-"), nil
}

func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// CheckFormat reports whether key has the right shape, without looking at the checksum.
func CheckFormat(key string) bool {
	_, _, _, ok := split(Normalize(key))
	return ok
}

func Validate(key string) bool {
	tier, first, second, ok := split(Normalize(key))
	if !ok {
		return false
	}
	return checksum(tier, first, second[:partLength-1]) == second[partLength-1]
}

func TierOf(key string) (Tier, bool) {
	tier, _, _, ok := split(Normalize(key))
	if !ok {
		return "", false
	}
	return Tier(tier), true
}

func split(key string) (tier, first, second string, ok bool) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != Prefix {
		return "", "", "", false
	}
	if !Tier(parts[1]).Valid() {
		return "", "", "", false
	}
	if !isPart(parts[2]) || !isPart(parts[3]) {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

func isPart(part string) bool {
	if len(part) != partLength {
		return false
	}
	for i := 0; i < len(part); i++ {
		c := part[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func checksum(segments ...string) byte {
	sum := 0
	position := 1
	for _, segment := range segments {
		for i := 0; i < len(segment); i++ {
			sum += int(segment[i]) * position
			position++
		}
	}
	return byte('A' + sum%26)
}

func (g *Generator) randomString(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= sampleCeiling {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
