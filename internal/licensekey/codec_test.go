package licensekey

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTripForEveryTier(t *testing.T) {
	t.Parallel()

	for _, tier := range []Tier{TierBeta, TierPremium, TierUnlimited} {
		for i := 0; i < 50; i++ {
			key, err := Generate(tier)
			require.NoError(t, err)
			assert.True(t, Validate(key), "generated key %s should validate", key)
			assert.True(t, strings.HasPrefix(key, "HA-"+string(tier)+"-"))

			parts := strings.Split(key, "-")
			require.Len(t, parts, 4)
			assert.Len(t, parts[2], 8)
			assert.Len(t, parts[3], 8)
		}
	}
}

func TestValidateKnownChecksumVector(t *testing.T) {
	t.Parallel()

	assert.True(t, Validate("HA-BETA-AAAAAAAA-0000000I"))
	assert.True(t, Validate("  ha-beta-aaaaaaaa-0000000i "), "input is case-insensitive and trimmed")
	assert.False(t, Validate("HA-BETA-AAAAAAAA-0000000J"))
}

func TestValidateRejectsMalformedKeys(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "three segments", key: "HA-BETA-AAAAAAAA"},
		{name: "five segments", key: "HA-BETA-AAAAAAAA-0000000I-X"},
		{name: "wrong prefix", key: "HB-BETA-AAAAAAAA-0000000I"},
		{name: "unknown tier", key: "HA-GOLD-AAAAAAAA-0000000I"},
		{name: "short first part", key: "HA-BETA-AAAAAAA-0000000I"},
		{name: "long second part", key: "HA-BETA-AAAAAAAA-0000000II"},
		{name: "non alphanumeric", key: "HA-BETA-AAAA_AAA-0000000I"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, Validate(tc.key))
		})
	}
}

func TestValidateDetectsTamperedChecksumCharacter(t *testing.T) {
	t.Parallel()

	key, err := Generate(TierBeta)
	require.NoError(t, err)

	last := key[len(key)-1]
	for c := byte('A'); c <= 'Z'; c++ {
		if c == last {
			continue
		}
		tampered := key[:len(key)-1] + string(c)
		assert.False(t, Validate(tampered), "tampered key %s should not validate", tampered)
	}
}

func TestValidateDetectsMostBodyEdits(t *testing.T) {
	t.Parallel()

	key := "HA-BETA-AAAAAAAA-0000000I"
	accepted := 0
	total := 0
	for i := len("HA-BETA-"); i < len(key)-1; i++ {
		if key[i] == '-' {
			continue
		}
		for _, c := range []byte(alphabet) {
			if c == key[i] {
				continue
			}
			total++
			if Validate(key[:i] + string(c) + key[i+1:]) {
				accepted++
			}
		}
	}

	assert.Less(t, float64(accepted)/float64(total), 0.1)
}

func TestGeneratorIsDeterministicForFixedRandomness(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, 4)

	first, err := NewGenerator(bytes.NewReader(seed)).Generate(TierPremium)
	require.NoError(t, err)
	second, err := NewGenerator(bytes.NewReader(seed)).Generate(TierPremium)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "HA-PREMIUM-01234567-89ABCDE", first[:len(first)-1])
	assert.True(t, Validate(first))
}

func TestGeneratorSkipsBiasedBytes(t *testing.T) {
	t.Parallel()

	seed := append(bytes.Repeat([]byte{255}, 8), bytes.Repeat([]byte{1}, 32)...)

	key, err := NewGenerator(bytes.NewReader(seed)).Generate(TierBeta)
	require.NoError(t, err)
	assert.Equal(t, "HA-BETA-11111111-1111111", key[:len(key)-1])
}

func TestGenerateRejectsUnknownTier(t *testing.T) {
	t.Parallel()

	_, err := Generate(Tier("GOLD"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTier))
}

func TestParseTierAcceptsPlanNames(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Tier{"beta": TierBeta, "Premium": TierPremium, " UNLIMITED ": TierUnlimited} {
		tier, err := ParseTier(raw)
		require.NoError(t, err)
		assert.Equal(t, want, tier)
		assert.Equal(t, domain.PlanBeta, tier.Plan())
	}

	_, err := ParseTier("free")
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestTierOfAndCheckFormat(t *testing.T) {
	t.Parallel()

	tier, ok := TierOf("ha-unlimited-aaaaaaaa-0000000a")
	require.True(t, ok)
	assert.Equal(t, TierUnlimited, tier)
	assert.True(t, CheckFormat("ha-unlimited-aaaaaaaa-0000000a"))
	assert.False(t, CheckFormat("HA-UNLIMITED-AAAA"))
}
