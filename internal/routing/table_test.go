package routing

import (
	"strings"
	"testing"
)

func TestBestDevice(t *testing.T) {
	table := NewTable([]Entry{
		{Destination: "default", Device: "eth0"},
		{Destination: "10.0.0.0/8", Device: "eth1"},
		{Destination: "10.1.0.0/16", Device: "eth2"},
		{Destination: "10.1.2.3", Device: "lo0"},
	})

	tests := []struct {
		addr string
		want string
	}{
		{"8.8.8.8", "eth0"},
		{"10.9.0.1", "eth1"},
		{"10.1.9.1", "eth2"},
		{"10.1.2.3", "lo0"},
		{"not-an-ip", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := table.BestDevice(tt.addr); got != tt.want {
			t.Errorf("BestDevice(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestBestDeviceFirstWinsOnTie(t *testing.T) {
	table := NewTable([]Entry{
		{Destination: "10.0.0.0/8", Device: "first"},
		{Destination: "10.0.0.0/8", Device: "second"},
	})
	if got := table.BestDevice("10.1.1.1"); got != "first" {
		t.Errorf("BestDevice = %q, want the earlier route", got)
	}
}

func TestBestDeviceEmptyTable(t *testing.T) {
	if got := NewTable(nil).BestDevice("10.0.0.1"); got != "" {
		t.Errorf("BestDevice on empty table = %q", got)
	}
}

func TestBestDeviceSkipsMalformedRoutes(t *testing.T) {
	table := NewTable([]Entry{
		{Destination: "10.0.0.0/40", Device: "bad"},
		{Destination: "10.0.0.0/8", Device: "eth1"},
		{Destination: "192.168.0.0/16", Device: ""},
	})
	if got := table.BestDevice("10.0.0.1"); got != "eth1" {
		t.Errorf("BestDevice = %q, want eth1", got)
	}
	if got := table.BestDevice("192.168.1.1"); got != "" {
		t.Errorf("route without a device matched: %q", got)
	}
}

func TestParseShow(t *testing.T) {
	input := `default via 203.0.113.1 dev eth0 proto static
10.1.0.0/16 dev eth1 proto kernel scope link src 10.1.0.1
10.2.0.0/16 via 10.1.0.254 dev eth1 proto static metric 100
blackhole 172.16.0.0/12
broken line
`
	entries, err := ParseShow(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries: %+v", len(entries), entries)
	}
	if entries[0].Destination != "default" || entries[0].Device != "eth0" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Destination != "10.1.0.0/16" || entries[1].Device != "eth1" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	if entries[2].Destination != "10.2.0.0/16" || entries[2].Device != "eth1" {
		t.Errorf("entries[2] = %+v", entries[2])
	}

	table := NewTable(entries)
	if got := table.BestDevice("10.2.5.5"); got != "eth1" {
		t.Errorf("BestDevice(10.2.5.5) = %q", got)
	}
	if got := table.BestDevice("203.0.113.50"); got != "eth0" {
		t.Errorf("BestDevice(203.0.113.50) = %q", got)
	}
}
