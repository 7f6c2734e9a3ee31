package client

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Config of a chat client. Defaults can be loaded via envdecode.
type Config struct {
	// URL of the server WebSocket endpoint. ENV: FLEETSOCKET_URL
	URL string `env:"FLEETSOCKET_URL,default=ws://localhost:3001/ws"`
	// Name is the display name announced on connect. Blank lets the server
	// pick a guest name. ENV: FLEETSOCKET_NAME
	Name string `env:"FLEETSOCKET_NAME"`
	// Room joined on connect. ENV: FLEETSOCKET_ROOM
	Room string `env:"FLEETSOCKET_ROOM,default=General"`
}

// ConfigFromEnv decodes a Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode client config: %w", err)
	}
	return cfg, nil
}
