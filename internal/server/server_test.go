package server

import (
	"time"

	"github.com/koustreak/querygate/internal/config"
)

func configForTest() config.HTTPConfig {
	return config.HTTPConfig{
		Address:         "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}
