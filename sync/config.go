package sync

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/config"
)

// Config is loaded once per run and must not be modified afterwards.
type Config struct {
	Organization Organization
	API          APISettings
	Credentials  struct {
		Required []string
	}
	Paths Paths
	M365  M365Settings
	NGC   NGCSettings `yaml:"ngc"`
}

type Organization struct {
	ID   string
	Name string
}

type APISettings struct {
	BaseURL string `yaml:"base_url"`
	// Endpoints maps a batch kind (e.g. "accounts") to a path relative to BaseURL.
	Endpoints map[string]string
	// Order lists kinds in submission order. Kinds not listed follow in name order.
	Order []string
	// Contexts maps a batch kind to the optional "context" value of its request body.
	Contexts map[string]string
}

type Paths struct {
	Data    string
	Logs    string
	Reports string
}

type M365Settings struct {
	BaseURL   string `yaml:"base_url"`
	LoginURL  string `yaml:"login_url"`
	TenantID  string `yaml:"tenant_id"`
	AdminUser string `yaml:"admin_user"`
}

type NGCSettings struct {
	BaseURL string `yaml:"base_url"`
}

// legacyKinds maps older endpoint keys to the batch kind they name.
var legacyKinds = map[string]string{
	"account_validation": "accounts",
	"entity_validation":  "entities",
	"payroll_validation": "payroll",
}

// normalizeLegacyKinds renames legacy keys in Endpoints, Contexts and Order.
// An explicit canonical key wins over its legacy spelling.
func (a *APISettings) normalizeLegacyKinds() {
	rename := func(m map[string]string) {
		for legacy, kind := range legacyKinds {
			v, exists := m[legacy]
			if !exists {
				continue
			}
			delete(m, legacy)
			if _, taken := m[kind]; !taken {
				m[kind] = v
			}
		}
	}
	rename(a.Endpoints)
	rename(a.Contexts)
	for i, k := range a.Order {
		if kind, exists := legacyKinds[k]; exists {
			a.Order[i] = kind
		}
	}
}

// Kinds returns the configured batch kinds in submission order.
func (c Config) Kinds() []string {
	seen := make(map[string]bool, len(c.API.Endpoints))
	var result []string
	for _, k := range c.API.Order {
		if _, exists := c.API.Endpoints[k]; exists && !seen[k] {
			seen[k] = true
			result = append(result, k)
		}
	}
	var rest []string
	for k := range c.API.Endpoints {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(result, rest...)
}

// EndpointURL returns base URL + the endpoint path configured for kind.
func (c Config) EndpointURL(kind string) (string, bool) {
	p, exists := c.API.Endpoints[kind]
	if !exists {
		return "", false
	}
	return c.API.BaseURL + p, true
}

// RequestContext returns the "context" body value for kind, if any.
func (c Config) RequestContext(kind string) (string, bool) {
	v, exists := c.API.Contexts[kind]
	return v, exists && v != ""
}

func (c Config) validate() error {
	var problems []string
	if c.Organization.ID == "" {
		problems = append(problems, "organization.id is required")
	}
	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	}
	for _, k := range FieldMapsKeys(c.API.Endpoints) {
		if strings.TrimSpace(c.API.Endpoints[k]) == "" {
			problems = append(problems, fmt.Sprintf("api.endpoints.%s must not be empty", k))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// FieldMapsKeys returns the keys of m in sorted order.
func FieldMapsKeys(m map[string]string) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

type ConfigUnmarshaler interface {
	Unmarshal(env EnvLookup, sources ...ConfigFile) (Config, error)
}

// YAMLConfigUnmarshaler merges sources in order, later sources winning.
// JSON documents are accepted since JSON is valid YAML.
type YAMLConfigUnmarshaler struct{}

func (u YAMLConfigUnmarshaler) Unmarshal(env EnvLookup, sources ...ConfigFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(env.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "organization"
	err = yaml.Get(key).Populate(&result.Organization)
	if err != nil {
		return result, readError(key, err)
	}
	key = "api"
	err = yaml.Get(key).Populate(&result.API)
	if err != nil {
		return result, readError(key, err)
	}
	result.API.normalizeLegacyKinds()
	key = "credentials"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Credentials)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "paths"
	err = yaml.Get(key).Populate(&result.Paths)
	if err != nil {
		return result, readError(key, err)
	}
	key = "m365"
	err = yaml.Get(key).Populate(&result.M365)
	if err != nil {
		return result, readError(key, err)
	}
	key = "ngc"
	err = yaml.Get(key).Populate(&result.NGC)
	if err != nil {
		return result, readError(key, err)
	}
	return result, nil
}

// LoadConfig reads name from fs, layers it over the embedded defaults and
// validates the result. JPMORGAN_ORGANIZATION_ID, when set, replaces
// organization.id. All failures carry CodeInvalidConfig.
func LoadConfig(fs billy.Filesystem, name string, env EnvLookup) (Config, error) {
	var result Config
	file, err := MustFindConfigFile(fs, name)
	if err != nil {
		return result, err
	}
	result, err = YAMLConfigUnmarshaler{}.Unmarshal(env, DefaultsConfigFile(), file)
	if err != nil {
		return result, newError(CodeInvalidConfig, "config", fmt.Errorf("invalid configuration in %s: %w", name, err))
	}
	if id, ok := env.LookupEnv(EnvOrganizationID); ok && strings.TrimSpace(id) != "" {
		result.Organization.ID = strings.TrimSpace(id)
	}
	if err = result.validate(); err != nil {
		return result, newError(CodeInvalidConfig, "config", fmt.Errorf("invalid configuration in %s: %w", name, err))
	}
	return result, nil
}

// LoadOptionalConfig is LoadConfig for commands that only need vendor
// settings: a missing file yields the embedded defaults and the validation
// API fields are not required.
func LoadOptionalConfig(fs billy.Filesystem, name string, env EnvLookup) (Config, error) {
	sources := []ConfigFile{DefaultsConfigFile()}
	exists, err := fileExists(fs, name)
	if err != nil {
		return Config{}, newError(CodeInvalidConfig, "config", err)
	}
	if exists {
		file, err := MustFindConfigFile(fs, name)
		if err != nil {
			return Config{}, err
		}
		sources = append(sources, file)
	}
	result, err := YAMLConfigUnmarshaler{}.Unmarshal(env, sources...)
	if err != nil {
		return result, newError(CodeInvalidConfig, "config", fmt.Errorf("invalid configuration in %s: %w", name, err))
	}
	if id, ok := env.LookupEnv(EnvOrganizationID); ok && strings.TrimSpace(id) != "" {
		result.Organization.ID = strings.TrimSpace(id)
	}
	return result, nil
}
