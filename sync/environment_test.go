package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireEnv(t *testing.T) {
	err := RequireEnv(MapEnv{EnvProgramID: "p"}, EnvClientID, EnvProgramID)
	require.Error(t, err)
	assert.Equal(t, CodeEnvironment, CodeOf(err))
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), EnvClientID)
	assert.NotContains(t, err.Error(), EnvProgramID)

	err = RequireEnv(MapEnv{EnvClientID: "  "}, EnvClientID, EnvProgramID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JPMORGAN_CLIENT_ID, JPMORGAN_PROGRAM_ID")

	assert.NoError(t, RequireEnv(testEnv(), EnvClientID, EnvProgramID))
	assert.NoError(t, RequireEnv(MapEnv{}))
}

func TestLoadCredentials(t *testing.T) {
	creds := LoadCredentials(MapEnv{
		EnvClientID:     " client ",
		EnvProgramID:    "program",
		EnvM365ClientID: "m365-client",
		EnvNvidiaAPIKey: "nv-key",
	})
	assert.Equal(t, "client", creds.ClientID)
	assert.Equal(t, "program", creds.ProgramID)
	assert.Equal(t, DefaultProgramIDType, creds.ProgramIDType)
	assert.Equal(t, "m365-client", creds.M365ClientID)
	assert.Equal(t, "nv-key", creds.NvidiaAPIKey)
	assert.Empty(t, creds.M365ClientSecret)

	creds = LoadCredentials(MapEnv{EnvProgramIDType: "TPP"})
	assert.Equal(t, "TPP", creds.ProgramIDType)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestTransportError(t *testing.T) {
	assert.Equal(t, CodeTimeout, transportError("op", context.DeadlineExceeded).Code)
	assert.Equal(t, CodeTimeout, transportError("op", fmt.Errorf("get: %w", timeoutError{})).Code)
	assert.Equal(t, CodeNetwork, transportError("op", errors.New("connection refused")).Code)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", newError(CodeDecode, "decode", errors.New("bad")))
	assert.Equal(t, CodeDecode, CodeOf(wrapped))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.False(t, IsFatal(wrapped))
	assert.False(t, IsFatal(newError(CodeDataLoad, "load", errors.New("x"))))
	assert.Equal(t, "decode: bad", newError(CodeDecode, "decode", errors.New("bad")).Error())
	assert.Equal(t, "bad", newError(CodeDecode, "", errors.New("bad")).Error())
}
