package password

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// fastRegistry keeps bcrypt and PBKDF2 cheap in tests.
func fastRegistry() *Registry {
	return NewRegistryWithOptions(Options{BcryptCost: 4, PBKDF2Iterations: 1000})
}

func TestSchemesRoundTrip(t *testing.T) {
	reg := fastRegistry()
	plain := []byte("s3cret-Pässword")

	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			s, err := reg.Get(name)
			require.NoError(t, err)

			enc, err := s.Encode(plain)
			require.NoError(t, err)
			assert.True(t, s.Matches(plain, enc), "encoded value must verify")
			assert.False(t, s.Matches([]byte("wrong"), enc))

			tagged, err := s.EncodeWithScheme(plain)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(tagged, []byte("{"+name+"}")))

			ok, err := reg.Matches(plain, tagged)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSaltedSchemesProduceDistinctEncodings(t *testing.T) {
	for _, s := range []*Salted{NewSSHA(), NewSSHA256(), NewSSHA384(), NewSSHA512()} {
		t.Run(s.Name(), func(t *testing.T) {
			a, err := s.Encode([]byte("password"))
			require.NoError(t, err)
			b, err := s.Encode([]byte("password"))
			require.NoError(t, err)

			assert.NotEqual(t, a, b)
			assert.True(t, s.Matches([]byte("password"), a))
			assert.True(t, s.Matches([]byte("password"), b))
		})
	}
}

func TestSSHALayout(t *testing.T) {
	salt := []byte("12345678")
	h := sha1.New()
	h.Write([]byte("secret"))
	h.Write(salt)
	raw := append(h.Sum(nil), salt...)
	stored := base64.StdEncoding.EncodeToString(raw)

	s := NewSSHA()
	assert.True(t, s.Matches([]byte("secret"), []byte(stored)))

	enc, err := s.Encode([]byte("secret"))
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(string(enc))
	require.NoError(t, err)
	assert.Len(t, decoded, sha1.Size+SaltLength)
}

func TestSHAIsUnsaltedAndDeterministic(t *testing.T) {
	s := NewSHA()
	a, err := s.Encode([]byte("password"))
	require.NoError(t, err)
	b, err := s.Encode([]byte("password"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	// Well-known value of SHA-1("password").
	assert.Equal(t, "W6ph5Mm5Pz8GgiULbPgzG37mj9g=", string(a))
}

func TestMalformedStoredValuesDoNotMatch(t *testing.T) {
	tests := []struct {
		name   string
		scheme Scheme
		stored string
	}{
		{"sha bad base64", NewSHA(), "!!!not-base64"},
		{"ssha bad base64", NewSSHA(), "%%%"},
		{"ssha too short", NewSSHA(), base64.StdEncoding.EncodeToString([]byte("1234"))},
		{"pbkdf2 missing iterations", NewPBKDF2(1000), "AAAA"},
		{"pbkdf2 bad iterations", NewPBKDF2(1000), "x:AAAA"},
		{"pbkdf2 wrong length", NewPBKDF2(1000), "1000:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{"crypt unknown variant", NewCrypt(), "$9$abc$def"},
		{"bcrypt garbage", NewBcrypt(4), "not-a-hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.scheme.Matches([]byte("password"), []byte(tt.stored)))
		})
	}
}

func TestReversibility(t *testing.T) {
	reg := fastRegistry()
	for _, name := range reg.Names() {
		s, err := reg.Get(name)
		require.NoError(t, err)

		enc, err := s.Encode([]byte("secret"))
		require.NoError(t, err)

		plain, err := s.Plaintext(enc)
		if name == "CLEAR" {
			assert.True(t, s.IsReversible())
			require.NoError(t, err)
			assert.Equal(t, []byte("secret"), plain)
			continue
		}
		assert.False(t, s.IsReversible(), name)
		assert.ErrorIs(t, err, auth.ErrNotReversible, name)
		assert.Nil(t, plain)
	}
}

func TestCryptVariants(t *testing.T) {
	c := NewCrypt()

	enc, err := c.Encode([]byte("secret"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(enc), "$6$"))
	assert.True(t, c.Matches([]byte("secret"), enc))

	bcryptHash, err := NewBcrypt(4).Encode([]byte("secret"))
	require.NoError(t, err)
	assert.True(t, c.Matches([]byte("secret"), bcryptHash))
	assert.False(t, c.Matches([]byte("other"), bcryptHash))
}

func TestBcrypt(t *testing.T) {
	b := NewBcrypt(99)
	assert.Equal(t, DefaultBcryptCost, b.Cost())

	b = NewBcrypt(4)
	_, err := b.Encode(bytes.Repeat([]byte("a"), 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	enc, err := b.Encode([]byte("secret"))
	require.NoError(t, err)
	assert.False(t, b.NeedsRehash(enc))
	assert.True(t, NewBcrypt(5).NeedsRehash(enc))
}

func TestConcurrentMatches(t *testing.T) {
	s := NewSSHA512()
	enc, err := s.Encode([]byte("concurrent"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := []byte("concurrent")
			if i%2 == 1 {
				pw = []byte("wrong")
			}
			if got := s.Matches(pw, enc); got != (i%2 == 0) {
				errs <- errors.New("unexpected match result")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ============================================================================
// Registry and value syntax
// ============================================================================

func TestDecode(t *testing.T) {
	tests := []struct {
		in      string
		scheme  string
		payload string
		wantErr bool
	}{
		{"{SSHA}abc", "SSHA", "abc", false},
		{"{ssha512}xyz", "SSHA512", "xyz", false},
		{"{CLEAR}", "CLEAR", "", false},
		{"{CRYPT}$6$salt$hash", "CRYPT", "$6$salt$hash", false},
		{"plain", "", "", true},
		{"{}abc", "", "", true},
		{"{SSHA", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			scheme, payload, err := Decode([]byte(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.payload, string(payload))
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()

	s, err := reg.Get("ssha")
	require.NoError(t, err)
	assert.Equal(t, "SSHA", s.Name())

	_, err = reg.Get("MD4")
	assert.ErrorIs(t, err, ErrUnknownScheme)

	ap, err := reg.GetAuthPassword("sha1")
	require.NoError(t, err)
	assert.Equal(t, "SSHA", ap.Name())

	_, err = reg.GetAuthPassword("CLEAR")
	assert.ErrorIs(t, err, ErrUnknownScheme)

	assert.Contains(t, reg.Names(), "SSHA384")
	assert.Contains(t, reg.Names(), "PBKDF2-HMAC-SHA256")
}

func TestAuthPasswordSyntax(t *testing.T) {
	reg := fastRegistry()

	for _, name := range []string{"SHA1", "SHA256", "SHA384", "SHA512", "PBKDF2", "PBKDF2-HMAC-SHA256"} {
		t.Run(name, func(t *testing.T) {
			value, err := reg.EncodeAuthPassword(name, []byte("secret"))
			require.NoError(t, err)

			parsed, err := ParseAuthPassword(value)
			require.NoError(t, err)
			assert.Equal(t, name, parsed.Scheme)
			assert.Equal(t, value, parsed.String())

			ok, err := reg.MatchesAuthPassword([]byte("secret"), value)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = reg.MatchesAuthPassword([]byte("nope"), value)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestParseAuthPasswordErrors(t *testing.T) {
	for _, in := range []string{"", "SHA1$abc", "SHA1$$digest", "$salt$digest", "a$b$c$d"} {
		_, err := ParseAuthPassword(in)
		assert.ErrorIs(t, err, ErrMalformedValue, in)
	}

	ap, err := ParseAuthPassword(" sha1 $ c2FsdA== $ ZGlnZXN0 ")
	require.NoError(t, err)
	assert.Equal(t, AuthPassword{Scheme: "SHA1", Salt: "c2FsdA==", Digest: "ZGlnZXN0"}, ap)
}

// ============================================================================
// Local policy
// ============================================================================

func TestLocalPolicy(t *testing.T) {
	reg := fastRegistry()
	ssha, err := reg.Encode("SSHA", []byte("secret"))
	require.NoError(t, err)
	authPw, err := reg.EncodeAuthPassword("SHA256", []byte("other"))
	require.NoError(t, err)

	entry := ldap.NewEntry("uid=alice,dc=example,dc=com", map[string][]string{
		"userPassword": {"untagged", "{UNKNOWN}xyz", string(ssha), "{CLEAR}clear-secret"},
		"authPassword": {"bogus", authPw},
	})

	p := NewLocalPolicy(reg)
	ctx := context.Background()

	for pw, want := range map[string]bool{
		"secret":       true,
		"clear-secret": true,
		"other":        true,
		"untagged":     false,
		"wrong":        false,
		"":             false,
	} {
		got, err := p.PasswordMatches(ctx, entry, []byte(pw))
		require.NoError(t, err)
		assert.Equal(t, want, got, "password %q", pw)
	}

	got, err := p.PasswordMatches(ctx, nil, []byte("secret"))
	require.NoError(t, err)
	assert.False(t, got)

	clear, err := p.ClearPasswords(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("clear-secret")}, clear)
}
