package main

import (
	"testing"

	"github.com/siohaza/limbogate/internal/proxy"
)

func TestParseServer(t *testing.T) {
	tests := []struct {
		in      string
		want    proxy.ServerInfo
		wantErr bool
	}{
		{in: "lobby=10.0.0.2:25565", want: proxy.ServerInfo{Name: "lobby", Host: "10.0.0.2", Port: 25565}},
		{in: " hub =localhost:1", want: proxy.ServerInfo{Name: "hub", Host: "localhost", Port: 1}},
		{in: "lobby", wantErr: true},
		{in: "=host:1", wantErr: true},
		{in: "lobby=host", wantErr: true},
		{in: "lobby=host:0", wantErr: true},
		{in: "lobby=host:http", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseServer(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseServer(%q) expected an error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseServer(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseServer(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
