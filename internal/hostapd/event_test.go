package hostapd

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantKind EventKind
		wantName string
		wantMAC  string
		wantErr  bool
	}{
		{
			name:     "connected",
			frame:    "<3>AP-STA-CONNECTED aa:bb:cc:dd:ee:ff",
			wantKind: EventConnected,
			wantName: "AP-STA-CONNECTED",
			wantMAC:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "disconnected",
			frame:    "<3>AP-STA-DISCONNECTED aa:bb:cc:dd:ee:ff",
			wantKind: EventDisconnected,
			wantName: "AP-STA-DISCONNECTED",
			wantMAC:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "upper case mac is normalised",
			frame:    "<3>AP-STA-CONNECTED AA:BB:CC:DD:EE:FF",
			wantKind: EventConnected,
			wantName: "AP-STA-CONNECTED",
			wantMAC:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "extra arguments ignored",
			frame:    "<3>AP-STA-CONNECTED 02:00:00:00:01:00 keyid=guest auth_alg=open",
			wantKind: EventConnected,
			wantName: "AP-STA-CONNECTED",
			wantMAC:  "02:00:00:00:01:00",
		},
		{
			name:     "trailing newline",
			frame:    "<3>AP-STA-DISCONNECTED 02:00:00:00:01:00\n",
			wantKind: EventDisconnected,
			wantName: "AP-STA-DISCONNECTED",
			wantMAC:  "02:00:00:00:01:00",
		},
		{
			name:     "no priority marker",
			frame:    "AP-STA-CONNECTED 02:00:00:00:01:00",
			wantKind: EventConnected,
			wantName: "AP-STA-CONNECTED",
			wantMAC:  "02:00:00:00:01:00",
		},
		{
			name:     "multi digit priority",
			frame:    "<12>AP-STA-CONNECTED 02:00:00:00:01:00",
			wantKind: EventConnected,
			wantName: "AP-STA-CONNECTED",
			wantMAC:  "02:00:00:00:01:00",
		},
		{
			name:     "unrecognized event",
			frame:    "<3>CTRL-EVENT-EAP-STARTED 02:00:00:00:01:00",
			wantKind: EventUnrecognized,
			wantName: "CTRL-EVENT-EAP-STARTED",
		},
		{
			name:     "unrecognized event without args",
			frame:    "<3>AP-ENABLED",
			wantKind: EventUnrecognized,
			wantName: "AP-ENABLED",
		},
		{
			name:    "empty frame",
			frame:   "",
			wantErr: true,
		},
		{
			name:    "marker only",
			frame:   "<3>",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			frame:   "<3>   \n",
			wantErr: true,
		},
		{
			name:    "connected without mac",
			frame:   "<3>AP-STA-CONNECTED",
			wantErr: true,
		},
		{
			name:    "disconnected with garbage mac",
			frame:   "<3>AP-STA-DISCONNECTED not-a-mac",
			wantErr: true,
		},
		{
			name:    "eui64 address rejected",
			frame:   "<3>AP-STA-CONNECTED 02:00:00:00:00:01:00:00",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.frame, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("Decode(%q) error = %v, want ErrDecode", tt.frame, err)
				}
				return
			}
			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", ev.Kind, tt.wantKind)
			}
			if ev.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", ev.Name, tt.wantName)
			}
			if ev.MAC != tt.wantMAC {
				t.Errorf("MAC = %q, want %q", ev.MAC, tt.wantMAC)
			}
		})
	}
}

func TestDecode_KeepsArgs(t *testing.T) {
	ev, err := Decode([]byte("<3>AP-STA-CONNECTED 02:00:00:00:01:00 keyid=guest"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(ev.Args) != 2 || ev.Args[1] != "keyid=guest" {
		t.Errorf("Args = %v, want [02:00:00:00:01:00 keyid=guest]", ev.Args)
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventConnected, "connected"},
		{EventDisconnected, "disconnected"},
		{EventUnrecognized, "unrecognized"},
		{EventKind(99), "unrecognized"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"aa-bb-cc-dd-ee-ff", "aa:bb:cc:dd:ee:ff", false},
		{"aabb.ccdd.eeff", "aa:bb:cc:dd:ee:ff", false},
		{"", "", true},
		{"aa:bb:cc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMAC(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
