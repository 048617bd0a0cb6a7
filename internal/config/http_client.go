package config

import (
	"net/http"
	"time"
)

func NewHTTPClient(cfg *AppConfig) *http.Client {
	return &http.Client{
		Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}
}
