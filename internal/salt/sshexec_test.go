package salt

import "testing"

func TestParseMaster(t *testing.T) {
	tests := []struct {
		in      string
		user    string
		host    string
		port    string
		wantErr bool
	}{
		{in: "root@salt", user: "root", host: "salt", port: "22"},
		{in: "ops@salt.example.local:2222", user: "ops", host: "salt.example.local", port: "2222"},
		{in: "salt", wantErr: true},
		{in: "@salt", wantErr: true},
		{in: "root@", wantErr: true},
	}

	for _, tt := range tests {
		m, err := ParseMaster(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMaster(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMaster(%q): %v", tt.in, err)
			continue
		}
		if m.User != tt.user || m.Host != tt.host || m.Port != tt.port {
			t.Errorf("ParseMaster(%q) = %+v", tt.in, m)
		}
	}
}

func TestShellJoinQuotesArgs(t *testing.T) {
	got := shellJoin("salt", []string{"--out=json", "node-a", `pillar={"foo":"it's"}`})
	want := `salt '--out=json' 'node-a' 'pillar={"foo":"it'\''s"}'`
	if got != want {
		t.Errorf("shellJoin = %s, want %s", got, want)
	}
}
