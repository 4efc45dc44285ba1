package sync

import (
	"fmt"
	"os"
	"strings"
)

// Environment variable names read by this package.
const (
	EnvClientID       = "JPMORGAN_CLIENT_ID"
	EnvProgramID      = "JPMORGAN_PROGRAM_ID"
	EnvProgramIDType  = "JPMORGAN_PROGRAM_ID_TYPE"
	EnvOrganizationID = "JPMORGAN_ORGANIZATION_ID"
	EnvM365TenantID   = "M365_TENANT_ID"
	EnvM365ClientID   = "M365_CLIENT_ID"
	EnvM365Secret     = "M365_CLIENT_SECRET"
	EnvNvidiaAPIKey   = "NVIDIA_API_KEY"

	DefaultProgramIDType = "AVS"
)

// EnvLookup looks up a single environment value.
type EnvLookup interface {
	LookupEnv(key string) (string, bool)
}

// OSEnv reads from the process environment.
type OSEnv struct{}

func (OSEnv) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnv is an in-memory EnvLookup, mostly useful for tests.
type MapEnv map[string]string

func (m MapEnv) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Credentials holds every credential the three integrations consume.
// Values are copied out of the environment once, at process start.
type Credentials struct {
	ClientID       string
	ProgramID      string
	ProgramIDType  string
	OrganizationID string

	M365TenantID     string
	M365ClientID     string
	M365ClientSecret string

	NvidiaAPIKey string
}

// LoadCredentials copies all known credential variables out of env.
// It never fails; use RequireEnv to enforce presence.
func LoadCredentials(env EnvLookup) Credentials {
	get := func(key string) string {
		v, _ := env.LookupEnv(key)
		return strings.TrimSpace(v)
	}
	result := Credentials{
		ClientID:         get(EnvClientID),
		ProgramID:        get(EnvProgramID),
		ProgramIDType:    get(EnvProgramIDType),
		OrganizationID:   get(EnvOrganizationID),
		M365TenantID:     get(EnvM365TenantID),
		M365ClientID:     get(EnvM365ClientID),
		M365ClientSecret: get(EnvM365Secret),
		NvidiaAPIKey:     get(EnvNvidiaAPIKey),
	}
	if result.ProgramIDType == "" {
		result.ProgramIDType = DefaultProgramIDType
	}
	return result
}

// RequireEnv checks that every key is set to a non-blank value.
// The returned error names all missing keys, not just the first.
func RequireEnv(env EnvLookup, keys ...string) error {
	var missing []string
	for _, k := range keys {
		v, ok := env.LookupEnv(k)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return newError(CodeEnvironment, "environment", fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	return nil
}
