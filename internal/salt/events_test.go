package salt

import "testing"

func TestNewEventWatcherEndpoint(t *testing.T) {
	tests := []struct {
		apiURL  string
		want    string
		wantErr bool
	}{
		{apiURL: "http://salt:8000", want: "ws://salt:8000/ws/tok-123"},
		{apiURL: "https://salt:8000", want: "wss://salt:8000/ws/tok-123"},
		{apiURL: "https://salt:8000/", want: "wss://salt:8000/ws/tok-123"},
		{apiURL: "ftp://salt", wantErr: true},
	}

	for _, tt := range tests {
		w, err := NewEventWatcher(tt.apiURL, "tok-123")
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewEventWatcher(%q): expected error", tt.apiURL)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewEventWatcher(%q): %v", tt.apiURL, err)
			continue
		}
		if w.endpoint != tt.want {
			t.Errorf("NewEventWatcher(%q) endpoint = %s, want %s", tt.apiURL, w.endpoint, tt.want)
		}
	}
}
