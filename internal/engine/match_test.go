package engine

import "testing"

func TestMatchIP(t *testing.T) {
	tests := []struct {
		name      string
		criterion string
		addr      string
		want      bool
	}{
		{"empty criterion matches", "", "10.0.0.1", true},
		{"cidr contains", "10.1.0.0/16", "10.1.0.5", true},
		{"cidr excludes", "10.1.0.0/16", "10.2.0.5", false},
		{"cidr v6", "fd00::/8", "fd00::1", true},
		{"exact match", "192.168.1.1", "192.168.1.1", true},
		{"exact mismatch", "192.168.1.1", "192.168.1.2", false},
		{"range inside", "10.0.0.1-10.0.0.9", "10.0.0.5", true},
		{"range edge low", "10.0.0.1-10.0.0.9", "10.0.0.1", true},
		{"range edge high", "10.0.0.1-10.0.0.9", "10.0.0.9", true},
		{"range outside", "10.0.0.1-10.0.0.9", "10.0.0.10", false},
		{"dash token too few dots", "icmp-host-prohibited", "10.0.0.1", false},
		{"comma list first", "10.0.0.1,192.168.1.0/24", "10.0.0.1", true},
		{"comma list second", "10.0.0.1,192.168.1.0/24", "192.168.1.7", true},
		{"comma list none", "10.0.0.1,192.168.1.0/24", "172.16.0.1", false},
		{"malformed criterion", "10.999.0.0/16", "10.1.0.5", false},
		{"malformed address", "10.1.0.0/16", "not-an-ip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchIP(tt.criterion, tt.addr); got != tt.want {
				t.Errorf("MatchIP(%q, %q) = %v, want %v", tt.criterion, tt.addr, got, tt.want)
			}
		})
	}
}

func TestMatchPort(t *testing.T) {
	tests := []struct {
		name      string
		criterion string
		port      int
		want      bool
	}{
		{"empty matches", "", 22, true},
		{"exact", "22", 22, true},
		{"exact miss", "22", 23, false},
		{"colon range", "1000:2000", 1500, true},
		{"colon range low edge", "1000:2000", 1000, true},
		{"colon range miss", "1000:2000", 999, false},
		{"dash range", "80-90", 85, true},
		{"dash range miss", "80-90", 91, false},
		{"comma list", "80,443,8080", 443, true},
		{"comma list miss", "80,443,8080", 22, false},
		{"comma with range", "22,1000:2000", 1024, true},
		{"named port unsupported", "ssh", 22, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPort(tt.criterion, tt.port); got != tt.want {
				t.Errorf("MatchPort(%q, %d) = %v, want %v", tt.criterion, tt.port, got, tt.want)
			}
		})
	}
}

func TestMatchState(t *testing.T) {
	states := []string{"NEW", "ESTABLISHED"}

	if !MatchState(states, "new") {
		t.Error("state matching should be case-insensitive")
	}
	if !MatchState(states, "ESTABLISHED") {
		t.Error("listed state should match")
	}
	if MatchState(states, "INVALID") {
		t.Error("unlisted state should not match")
	}
	if !MatchState(nil, "NEW") {
		t.Error("empty state list should match anything")
	}
}
