package queryparse

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]string

func (f fakeResolver) LookupHost(name string) (string, error) {
	if addr, ok := f[name]; ok {
		return addr, nil
	}
	return "", fmt.Errorf("no address for %s", name)
}

func TestFirstAddress(t *testing.T) {
	r := fakeResolver{"web-1.corp": "10.5.0.1"}

	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{"10.0.0.1", "10.0.0.1", false},
		{"10.1.0.0/16", "10.1.0.0", false},
		{"10.1.5.0/24", "10.1.5.0", false},
		{"10.0.0.5-10.0.0.9", "10.0.0.5", false},
		{"bogus,10.0.0.1", "10.0.0.1", false},
		{" 10.0.0.1 , 10.0.0.2", "10.0.0.1", false},
		{"web-1.corp", "10.5.0.1", false},
		{"nosuch.host,10.9.9.9", "10.9.9.9", false},
		{"2001:db8::1", "2001:db8::1", false},
		{"nosuch.host", "", true},
		{"", "", true},
		{"10.0.0.0/99", "", true},
	}

	for _, tt := range tests {
		got, err := FirstAddress(tt.spec, r)
		if tt.wantErr {
			assert.Error(t, err, "spec %q", tt.spec)
			continue
		}
		require.NoError(t, err, "spec %q", tt.spec)
		assert.Equal(t, tt.want, got, "spec %q", tt.spec)
	}
}

func TestFirstAddressWithoutResolver(t *testing.T) {
	_, err := FirstAddress("somehost", nil)
	assert.Error(t, err, "hostnames need a resolver")

	got, err := FirstAddress("somehost,10.0.0.1", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got)
}

func TestFirstPort(t *testing.T) {
	tests := []struct {
		spec    string
		want    int
		wantErr bool
	}{
		{"22", 22, false},
		{"1000:2000", 1000, false},
		{"1000-2000", 1000, false},
		{"80,443", 80, false},
		{"x,443", 443, false},
		{"0", 0, true},
		{"70000", 0, true},
		{"", 0, true},
		{"x", 0, true},
	}

	for _, tt := range tests {
		got, err := FirstPort(tt.spec)
		if tt.wantErr {
			assert.Error(t, err, "spec %q", tt.spec)
			continue
		}
		require.NoError(t, err, "spec %q", tt.spec)
		assert.Equal(t, tt.want, got, "spec %q", tt.spec)
	}
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery("10.1.0.0/16", "40000", "9.9.9.9", "22", "TCP", "new", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.0", q.SrcIP)
	assert.Equal(t, 40000, q.SrcPort)
	assert.Equal(t, "9.9.9.9", q.DstIP)
	assert.Equal(t, 22, q.DstPort)
	assert.Equal(t, "tcp", q.Protocol)
	assert.Equal(t, "NEW", q.State)
}

func TestBuildQueryDefaults(t *testing.T) {
	q, err := BuildQuery("10.0.0.1", "", "10.0.0.2", "", "all", "", nil)
	require.NoError(t, err)
	assert.Zero(t, q.SrcPort)
	assert.Zero(t, q.DstPort)
	assert.Empty(t, q.Protocol, "all means unconstrained")
	assert.Empty(t, q.State, "the engine defaults the state")
}

func TestBuildQueryRejects(t *testing.T) {
	_, err := BuildQuery("", "", "10.0.0.2", "", "all", "", nil)
	assert.Error(t, err, "source is required")

	_, err = BuildQuery("10.0.0.1", "", "", "", "all", "", nil)
	assert.Error(t, err, "destination is required")

	_, err = BuildQuery("10.0.0.1", "", "10.0.0.2", "", "gre", "", nil)
	assert.Error(t, err, "protocol outside the query set")

	_, err = BuildQuery("10.0.0.1", "", "10.0.0.2", "", "all", "WEIRD", nil)
	assert.Error(t, err, "unknown state")

	_, err = BuildQuery("10.0.0.1", "x", "10.0.0.2", "", "all", "", nil)
	assert.Error(t, err, "bad source port")
}
