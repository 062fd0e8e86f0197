package relay

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/inercia/violet/pkg/common"
)

func TestKeyedLimiter(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newKeyedLimiter(1, 2, time.Minute)

	if !l.Allow("10.0.0.1", now) || !l.Allow("10.0.0.1", now) {
		t.Fatal("burst not honoured")
	}
	if l.Allow("10.0.0.1", now) {
		t.Error("third attempt within the same instant was allowed")
	}
	if !l.Allow("10.0.0.2", now) {
		t.Error("a different client was throttled")
	}
	if !l.Allow("10.0.0.1", now.Add(time.Second)) {
		t.Error("token was not refilled after one second")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestKeyedLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newKeyedLimiter(1000, 1000, time.Minute)

	l.Allow("idle", now)
	later := now.Add(2 * time.Minute)
	for i := 0; i < 511; i++ {
		l.Allow("busy", later)
	}

	if l.Len() != 1 {
		t.Errorf("Len() = %d after eviction, want 1", l.Len())
	}
}

func TestKeyedLimiterDisabled(t *testing.T) {
	for _, l := range []*keyedLimiter{newKeyedLimiter(0, 10, 0), newKeyedLimiter(1, 0, 0)} {
		if l != nil {
			t.Fatalf("expected a nil limiter, got %+v", l)
		}
		if !l.Allow("10.0.0.1", time.Now()) {
			t.Error("nil limiter throttled a client")
		}
	}
}

func TestAllocationTracker(t *testing.T) {
	tr := newAllocationTracker()

	tests := []struct {
		name     string
		setup    func()
		user     string
		maxTotal int
		quota    int
		want     quotaVerdict
	}{
		{name: "empty", user: "alice", maxTotal: 1, quota: 1, want: quotaOK},
		{name: "unlimited", setup: func() { tr.created("alice") }, user: "alice", want: quotaOK},
		{name: "user quota reached", user: "alice", quota: 1, want: quotaUser},
		{name: "other user under quota", user: "bob", maxTotal: 2, quota: 1, want: quotaOK},
		{name: "max reached", setup: func() { tr.created("bob") }, user: "carol", maxTotal: 2, want: quotaMax},
		{name: "max checked first", user: "alice", maxTotal: 2, quota: 1, want: quotaMax},
		{name: "after delete", setup: func() { tr.deleted("alice") }, user: "alice", maxTotal: 2, quota: 1, want: quotaOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			if got := tr.admit(tt.user, tt.maxTotal, tt.quota); got != tt.want {
				t.Errorf("admit(%q, %d, %d) = %q, want %q", tt.user, tt.maxTotal, tt.quota, got, tt.want)
			}
		})
	}

	if tr.Total() != 1 || tr.count("bob") != 1 || tr.count("alice") != 0 {
		t.Errorf("counts: total=%d bob=%d alice=%d", tr.Total(), tr.count("bob"), tr.count("alice"))
	}

	tr.deleted("bob")
	tr.deleted("bob")
	if tr.Total() != 0 || tr.count("bob") != 0 {
		t.Errorf("counts went negative: total=%d bob=%d", tr.Total(), tr.count("bob"))
	}
}

func TestPermissionPolicy(t *testing.T) {
	client := &net.UDPAddr{IP: net.IPv4(198, 51, 100, 4), Port: 40000}

	tests := []struct {
		name  string
		exprs []string
		peer  net.IP
		want  bool
	}{
		{name: "no policy", peer: net.IPv4(127, 0, 0, 1), want: true},
		{name: "loopback denied", exprs: []string{"!peer_loopback"}, peer: net.IPv4(127, 0, 0, 1), want: false},
		{name: "public allowed", exprs: []string{"!peer_loopback", "!peer_private"}, peer: net.IPv4(192, 0, 2, 1), want: true},
		{name: "private denied", exprs: []string{"!peer_private"}, peer: net.IPv4(10, 1, 2, 3), want: false},
		{name: "client match", exprs: []string{"client == '198.51.100.4'"}, peer: net.IPv4(192, 0, 2, 1), want: true},
		{name: "peer prefix", exprs: []string{"!peer.startsWith('192.0.2.')"}, peer: net.IPv4(192, 0, 2, 1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := CompilePermissions(tt.exprs, nil)
			if err != nil {
				t.Fatalf("CompilePermissions failed: %v", err)
			}
			got, err := policy.Evaluate(permissionArgs(client, tt.peer))
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompilePermissionsRejectsNonBoolean(t *testing.T) {
	if _, err := CompilePermissions([]string{"peer"}, nil); err == nil {
		t.Fatal("a string expression was accepted as a permission")
	}
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}, want: "10.0.0.1"},
		{addr: &net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 1}, want: "2001:db8::1"},
		{addr: nil, want: ""},
	}
	for _, tt := range tests {
		if got := hostOf(tt.addr); got != tt.want {
			t.Errorf("hostOf(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestLoggerBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := common.NewWriterLogger(&buf, "", common.LogLevelDebug)
	l := loggerFactory{logger: logger}.NewLogger("turn")

	l.Tracef("trace %d", 1)
	l.Debug("debug")
	l.Infof("info %s", "x")
	l.Warn("warn")
	l.Errorf("error %d", 2)

	out := buf.String()
	for _, want := range []string{"[DEBUG] turn: info x", "[WARN] turn: warn", "[ERROR] turn: error 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"trace 1", "turn: debug"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output contains %q below the debug level:\n%s", unwanted, out)
		}
	}
}
