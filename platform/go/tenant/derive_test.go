package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubdomainFromHost(t *testing.T) {
	cases := []struct {
		name string
		host string
		want string
	}{
		{"plain subdomain", "acme.channelpulse.io", "acme"},
		{"with port", "acme.channelpulse.io:8443", "acme"},
		{"uppercase normalized", "ACME.ChannelPulse.io", "acme"},
		{"nested subdomain takes leftmost", "reports.acme.channelpulse.io", "reports"},
		{"bare domain has none", "channelpulse.io", ""},
		{"localhost has none", "localhost", ""},
		{"localhost with port", "localhost:3000", ""},
		{"ip literal has none", "10.0.0.5", ""},
		{"ipv6 literal has none", "[::1]:8080", ""},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SubdomainFromHost(tc.host))
		})
	}
}

// A tenant name embedded mid-hostname must not resolve; only the leftmost
// label counts.
func TestSubdomainFromHostRejectsSubstringMatches(t *testing.T) {
	require.Equal(t, "staging", SubdomainFromHost("staging.acme-corp.channelpulse.io"))
	require.NotEqual(t, "acme", SubdomainFromHost("notacme.channelpulse.io"))
}

func TestNormalizeSubdomain(t *testing.T) {
	require.Equal(t, "acme", NormalizeSubdomain("  ACME "))
	require.Equal(t, "", NormalizeSubdomain("   "))
}
