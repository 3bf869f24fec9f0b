package adaptor

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		host    string
		origin  string
		want    bool
	}{
		{name: "no origin header", host: "relay.example.com", want: true},
		{name: "same host by default", host: "relay.example.com", origin: "https://relay.example.com", want: true},
		{name: "foreign host by default", host: "relay.example.com", origin: "https://evil.example.com", want: false},
		{name: "wildcard", origins: []string{"*"}, host: "relay.example.com", origin: "https://evil.example.com", want: true},
		{name: "listed", origins: []string{" HTTPS://App.Example.com "}, host: "relay.example.com", origin: "https://app.example.com", want: true},
		{name: "not listed", origins: []string{"https://app.example.com"}, host: "relay.example.com", origin: "http://app.example.com", want: false},
		{name: "garbage origin", origins: []string{"https://app.example.com"}, host: "relay.example.com", origin: "::nope", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, newOriginPolicy(tt.origins).check(r))
		})
	}
}
