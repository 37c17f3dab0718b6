package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("ROOMCHAT_ROOM", "")
	t.Setenv("ROOMCHAT_USERNAME", "")

	cfg, err := FromEnv()
	req.NoError(err)
	req.Equal(TransportWS, cfg.Transport)
	req.Equal("ws://localhost:3001/ws", cfg.RelayURL)
	req.Equal(1500*time.Millisecond, cfg.TypingWindow)
	req.Equal(time.Second, cfg.TypingThrottle)
	req.Equal(30*time.Second, cfg.HeartbeatInterval)
	req.Empty(cfg.RedisAddr)
	req.False(cfg.AutoJoin())
}

func TestFromEnv_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("ROOMCHAT_TRANSPORT", "nats")
	t.Setenv("ROOMCHAT_NATS_URL", "nats://relay:4222")
	t.Setenv("ROOMCHAT_ROOM", "lobby")
	t.Setenv("ROOMCHAT_USERNAME", "Alice")
	t.Setenv("ROOMCHAT_TYPING_WINDOW", "2s")
	t.Setenv("ROOMCHAT_REDIS_ADDR", "localhost:6379")

	cfg, err := FromEnv()
	req.NoError(err)
	req.Equal(TransportNATS, cfg.Transport)
	req.Equal("nats://relay:4222", cfg.NATSURL)
	req.Equal(2*time.Second, cfg.TypingWindow)
	req.Equal("localhost:6379", cfg.RedisAddr)
	req.True(cfg.AutoJoin())
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown transport": {"ROOMCHAT_TRANSPORT": "carrier-pigeon"},
		"bad duration":      {"ROOMCHAT_TYPING_WINDOW": "soon"},
		"zero window":       {"ROOMCHAT_TYPING_WINDOW": "0s"},
		"bad relay url":     {"ROOMCHAT_RELAY_URL": "not a url"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}

func TestFromEnv_RelayURLOnlyRequiredForWebSocket(t *testing.T) {
	req := require.New(t)
	t.Setenv("ROOMCHAT_RELAY_URL", "")

	_, err := FromEnv()
	req.Error(err)

	t.Setenv("ROOMCHAT_TRANSPORT", "nats")
	cfg, err := FromEnv()
	req.NoError(err)
	req.Equal(TransportNATS, cfg.Transport)
	req.Empty(cfg.RelayURL)
}
