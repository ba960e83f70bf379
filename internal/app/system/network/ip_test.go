package network

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.10:54321",
			want:       "192.0.2.10",
		},
		{
			name:       "remote addr ipv6 with port",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "forwarded chain takes first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2, 10.0.0.3"},
			want:       "203.0.113.5",
		},
		{
			name:       "forwarded garbage hop skipped",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 198.51.100.8"},
			want:       "198.51.100.8",
		},
		{
			name:       "forwarded hop with port",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.8:1234"},
			want:       "198.51.100.8",
		},
		{
			name:       "real ip used when forwarded is unusable",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": " 198.51.100.9 "},
			want:       "198.51.100.9",
		},
		{
			name:       "mapped ipv4 canonicalized",
			remoteAddr: "[::ffff:192.0.2.44]:80",
			want:       "192.0.2.44",
		},
		{
			name:       "forwarded wins over real ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.2"},
			want:       "203.0.113.1",
		},
		{
			name:       "unparseable remote addr returned as is",
			remoteAddr: "pipe",
			want:       "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
