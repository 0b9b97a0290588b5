package main

import (
	"bytes"
	"testing"

	"kiosk_system/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cfg := &config.Config{NATSURL: "nats://127.0.0.1:1", PresenceBucket: "TEST"}
	root := rootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := rootCmd(&config.Config{})
	for _, path := range [][]string{
		{"signal", "set"},
		{"signal", "clear"},
		{"signal", "get"},
		{"signal", "watch"},
		{"user", "add"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute("signal", "set", "only-email")
	assert.Error(t, err)

	_, err = execute("user", "add", "--email", "owner@kiosk.kr")
	assert.EqualError(t, err, "--email and --password are required")

	_, err = execute("user", "add", "--email", "owner@kiosk.kr", "--password", "secret1", "--store", "A")
	assert.EqualError(t, err, "--store only applies to --admin accounts")
}

func TestSignalNeedsNATS(t *testing.T) {
	_, err := execute("signal", "get", "owner@kiosk.kr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
