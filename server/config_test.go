package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	b := []byte(`
	{
		"url": "https://granary.example.com",
		"server": {
		  "host": "testhost",
		  "certificate": "testcert",
		  "privatekey": "testkey",
		  "port": 234
		},
		"sources": {
		  "reddit": {
			"baseURL": "https://oauth.reddit.com",
			"token": "sekrit"
		  },
		  "ao3": {}
		}
	  }`)
	cfg, err := ReadConfig(b)
	require.NoError(t, err)

	expected := Config{
		URL: "https://granary.example.com",
		Server: serverConfig{
			HostName:    "testhost",
			Certificate: "testcert",
			PrivateKey:  "testkey",
			Port:        234,
		},
		Sources: map[string]sourceConfig{
			"reddit": {
				BaseURL: "https://oauth.reddit.com",
				Token:   "sekrit",
			},
			"ao3": {},
		},
	}
	assert.Equal(t, expected, cfg)
}

func TestReadConfig_Invalid(t *testing.T) {
	_, err := ReadConfig([]byte("not json"))
	assert.Error(t, err)
}

func TestUseTLS(t *testing.T) {
	assert.False(t, serverConfig{}.useTLS())
	assert.False(t, serverConfig{Certificate: "c"}.useTLS())
	assert.True(t, serverConfig{Certificate: "c", PrivateKey: "k"}.useTLS())
}

func TestPublicHost(t *testing.T) {
	cfg := Config{URL: "https://granary.example.com/base"}
	assert.Equal(t, "granary.example.com", cfg.PublicHost())
}
