package server

import (
	"encoding/json"
	"net/url"
)

type serverConfig struct {
	HostName    string `json:"host"`
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privatekey"`
	Port        int    `json:"port"`
}

func (s serverConfig) useTLS() bool {
	return s.Certificate != "" && s.PrivateKey != ""
}

// sourceConfig points one source adapter at the upstream endpoint the fetch
// collaborator reads raw payloads from.
type sourceConfig struct {
	BaseURL string `json:"baseURL"`
	Token   string `json:"token,omitempty"`
}

type Config struct {
	URL     string                  `json:"url"` // public-facing URL
	Server  serverConfig            `json:"server"`
	Sources map[string]sourceConfig `json:"sources"`
}

func (c Config) PublicHost() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

func ReadConfig(b []byte) (config Config, err error) {
	if uErr := json.Unmarshal(b, &config); uErr != nil {
		return config, uErr
	}
	return config, nil
}
