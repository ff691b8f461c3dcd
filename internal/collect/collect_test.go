package collect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tsim/internal/logging"
	"grimm.is/tsim/internal/routing"
)

const iptablesCapture = `*filter
:INPUT ACCEPT [102:8134]
:FORWARD ACCEPT [0:0]
:OUTPUT ACCEPT [88:9162]
:CUSTOM - [0:0]
-A FORWARD -s 10.1.0.0/16 -i eth0 -p tcp --dport 22 -j ACCEPT
-A FORWARD -j CUSTOM
-A CUSTOM -m set --match-set badhosts src -j DROP
COMMIT
`

const ipsetCapture = `create badhosts hash:ip family inet hashsize 1024 maxelem 65536
add badhosts 198.51.100.7
`

type fakeRoutes struct {
	entries []routing.Entry
	err     error
}

func (f fakeRoutes) Routes() ([]routing.Entry, error) { return f.entries, f.err }

func TestCaptureBuildsEvaluableDocument(t *testing.T) {
	runner := &MockCommandRunner{}
	runner.On("Output", "iptables-save", "-t", "filter").Return([]byte(iptablesCapture), nil)
	runner.On("Output", "ipset", "save").Return([]byte(ipsetCapture), nil)

	routes := fakeRoutes{entries: []routing.Entry{
		{Destination: "10.1.0.0/16", Device: "eth0"},
		{Destination: "default", Device: "eth1"},
	}}

	doc, err := Capture(runner, routes, Options{Router: "edge1"})
	require.NoError(t, err)
	runner.AssertExpectations(t)

	assert.Equal(t, "edge1", doc.Router)
	require.NoError(t, doc.Validate())

	eng, err := doc.Engine(logging.Default())
	require.NoError(t, err)
	assert.Equal(t, 3, eng.Table().RuleCount())
	assert.True(t, eng.Sets().Contains("badhosts", "198.51.100.7", "*", "*"))
	assert.Equal(t, "eth0", eng.Routes().BestDevice("10.1.0.5"))
	assert.Equal(t, "eth1", eng.Routes().BestDevice("9.9.9.9"))
}

func TestCaptureIptablesFailureIsFatal(t *testing.T) {
	runner := &MockCommandRunner{}
	runner.On("Output", "iptables-save", "-t", "filter").Return(nil, errors.New("not permitted"))

	_, err := Capture(runner, nil, Options{Router: "edge1"})
	assert.Error(t, err)
}

func TestCaptureMissingIpsetMarksUnavailable(t *testing.T) {
	runner := &MockCommandRunner{}
	runner.On("Output", "iptables-save", "-t", "filter").Return([]byte(iptablesCapture), nil)
	runner.On("Output", "ipset", "save").Return(nil, errors.New("executable file not found"))

	doc, err := Capture(runner, fakeRoutes{}, Options{Router: "edge1"})
	require.NoError(t, err)

	require.NotNil(t, doc.Firewall.Ipset.Available)
	assert.False(t, *doc.Firewall.Ipset.Available)
	assert.Error(t, doc.Validate())
}

func TestCaptureRouteListerErrorIsFatal(t *testing.T) {
	runner := &MockCommandRunner{}
	runner.On("Output", "iptables-save", "-t", "filter").Return([]byte(iptablesCapture), nil)
	runner.On("Output", "ipset", "save").Return([]byte(ipsetCapture), nil)

	_, err := Capture(runner, fakeRoutes{err: errors.New("netlink down")}, Options{Router: "edge1"})
	assert.Error(t, err)
}
