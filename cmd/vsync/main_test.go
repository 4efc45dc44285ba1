package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/homemade/vsync/sync"
)

type validationAPI struct {
	*httptest.Server

	mu    gosync.Mutex
	paths []string
}

func newValidationAPI(t *testing.T, failing string) *validationAPI {
	api := &validationAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		api.mu.Lock()
		api.paths = append(api.paths, r.Method+" "+r.URL.Path)
		api.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == failing {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"message":"upstream unavailable"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"accepted","data":[1]}`)
	}))
	t.Cleanup(api.Close)
	return api
}

func (api *validationAPI) Paths() []string {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]string(nil), api.paths...)
}

type testApp struct {
	app
	out *bytes.Buffer
	err *bytes.Buffer
}

func newTestApp(t *testing.T, baseURL string, env sync.MapEnv) testApp {
	fs := memfs.New()
	config := `{
  "organization": {"id": "org-123", "name": "Test Org"},
  "api": {
    "base_url": "` + baseURL + `",
    "endpoints": {"accounts": "/accounts", "entities": "/entities", "payroll": "/payroll"},
    "order": ["accounts", "entities", "payroll"]
  },
  "paths": {"data": "data", "logs": "logs", "reports": "reports"}
}`
	require.NoError(t, util.WriteFile(fs, "config.json", []byte(config), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/accounts.json", []byte(`[{"id":"a1"}]`), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/entities.json", []byte(`[{"id":"e1"}]`), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/payroll.json", []byte(`[{"id":"p1"}]`), 0o644))

	ta := testApp{out: &bytes.Buffer{}, err: &bytes.Buffer{}}
	ta.app = app{
		stdout: ta.out,
		stderr: ta.err,
		env:    env,
		fs:     fs,
		now:    func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) },
	}
	return ta
}

func credentials() sync.MapEnv {
	return sync.MapEnv{
		sync.EnvClientID:  "client-1",
		sync.EnvProgramID: "program-1",
	}
}

func TestRun_Usage(t *testing.T) {
	ta := newTestApp(t, "http://localhost", credentials())

	assert.Equal(t, exitOK, ta.run(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "Usage: vsync <command> [options]")

	assert.Equal(t, exitFatal, ta.run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, ta.err.String(), "Unknown command: frobnicate")

	assert.Equal(t, exitOK, ta.run(context.Background(), []string{"version"}))
	assert.Contains(t, ta.out.String(), "vsync version "+version)
}

func TestValidation_SyncWithReport(t *testing.T) {
	api := newValidationAPI(t, "")
	ta := newTestApp(t, api.URL, credentials())

	code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-report"})

	assert.Equal(t, exitOK, code)
	assert.Equal(t, []string{"POST /accounts", "POST /entities", "POST /payroll"}, api.Paths())
	assert.Contains(t, ta.out.String(), "Status: complete")
	assert.Contains(t, ta.out.String(), "ENTITIES:\n  - Records processed: 1\n  - Status: accepted")
	assert.Contains(t, ta.out.String(), "Report saved to: reports/sync-report-20240131-120000.json")

	data, err := util.ReadFile(ta.fs, "reports/sync-report-20240131-120000.json")
	require.NoError(t, err)
	assert.Equal(t, "org-123", gjson.GetBytes(data, "organization").String())
	assert.Equal(t, "accepted", gjson.GetBytes(data, "results.payroll.status").String())

	_, err = ta.fs.Stat("logs/validation-sync-20240131.log")
	assert.NoError(t, err)
}

func TestValidation_PartialFailure(t *testing.T) {
	api := newValidationAPI(t, "/entities")

	ta := newTestApp(t, api.URL, credentials())
	assert.Equal(t, exitOK, ta.run(context.Background(), []string{"validation", "-config=config.json", "-report"}))
	assert.Equal(t, []string{"POST /accounts", "POST /entities"}, api.Paths())
	assert.Contains(t, ta.out.String(), "Status: partial")
	assert.Contains(t, ta.out.String(), "ERROR:")

	strict := newTestApp(t, api.URL, credentials())
	assert.Equal(t, exitPartial, strict.run(context.Background(), []string{"validation", "-config=config.json", "-strict"}))
}

func TestValidation_MissingCredentialsMakesNoRequests(t *testing.T) {
	api := newValidationAPI(t, "")
	ta := newTestApp(t, api.URL, sync.MapEnv{})

	code := ta.run(context.Background(), []string{"validation", "-config=config.json"})

	assert.Equal(t, exitFatal, code)
	assert.Empty(t, api.Paths())
	assert.Contains(t, ta.err.String(), "JPMORGAN_CLIENT_ID, JPMORGAN_PROGRAM_ID")
}

func TestValidation_MissingConfig(t *testing.T) {
	ta := newTestApp(t, "http://localhost", credentials())

	code := ta.run(context.Background(), []string{"validation"})

	assert.Equal(t, exitFatal, code)
	assert.Contains(t, ta.err.String(), "configuration file not found: workspace/jpmorgan-config.json")
}

func TestValidation_HealthCheck(t *testing.T) {
	api := newValidationAPI(t, "/payroll")
	ta := newTestApp(t, api.URL, credentials())

	code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-health-check"})

	assert.Equal(t, exitOK, code)
	assert.Len(t, api.Paths(), 3)
	out := ta.out.String()
	start := bytes.IndexByte(ta.out.Bytes(), '{')
	require.GreaterOrEqual(t, start, 0)
	health := gjson.Parse(out[start:])
	assert.Equal(t, "healthy", health.Get("accounts.status").String())
	assert.Equal(t, int64(http.StatusBadGateway), health.Get("payroll.status_code").Int())
}

func TestValidation_IndividualSyncTypeNotImplemented(t *testing.T) {
	api := newValidationAPI(t, "")
	ta := newTestApp(t, api.URL, credentials())

	code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-sync-type=accounts"})

	assert.Equal(t, exitOK, code)
	assert.Empty(t, api.Paths())
	assert.Contains(t, ta.out.String(), "Individual sync type 'accounts' not yet implemented")
}

func TestValidation_SyncTypes(t *testing.T) {
	for _, kind := range []string{"entities", "payroll"} {
		api := newValidationAPI(t, "")
		ta := newTestApp(t, api.URL, credentials())

		code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-sync-type=" + kind})

		assert.Equal(t, exitOK, code, kind)
		assert.Empty(t, api.Paths(), kind)
		assert.Contains(t, ta.out.String(), "Individual sync type '"+kind+"' not yet implemented")
	}
}

func TestValidation_InvalidSyncType(t *testing.T) {
	api := newValidationAPI(t, "")
	ta := newTestApp(t, api.URL, credentials())

	code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-sync-type=bogus"})

	assert.Equal(t, exitFatal, code)
	assert.Empty(t, api.Paths())
	assert.Contains(t, ta.err.String(), `invalid -sync-type "bogus": choose from accounts, entities, payroll, all`)
	assert.NotContains(t, ta.out.String(), "not yet implemented")
}

func TestValidation_Describe(t *testing.T) {
	ta := newTestApp(t, "https://validation.example.com", sync.MapEnv{})

	code := ta.run(context.Background(), []string{"validation", "-config=config.json", "-describe"})

	assert.Equal(t, exitOK, code)
	assert.Contains(t, ta.out.String(), "3,payroll,PAYROLL,/payroll,https://validation.example.com/payroll,payroll,data/payroll.json")
}

func TestNGC_ModelsWithoutKey(t *testing.T) {
	ta := newTestApp(t, "http://localhost", sync.MapEnv{})

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json", "-models"})

	assert.Equal(t, exitOK, code)
	assert.Contains(t, ta.out.String(), `"error": "API key required"`)
}

func ngcTestApp(t *testing.T) testApp {
	ta := newTestApp(t, "http://localhost", sync.MapEnv{})
	ta.ngcSetup = func(n *sync.NGCClient) {
		n.DriverQuery = func(ctx context.Context) (string, error) { return "535.104.05\n", nil }
		n.CUDAQuery = func(ctx context.Context) (string, error) { return "| Driver Version: 535.104.05   CUDA Version: 12.2 |", nil }
		n.GPUQuery = func(ctx context.Context) (string, error) {
			return "0, Tesla T4, 535.104.05, 15360, 15000, 360, 5, 40, GPU-abc\n", nil
		}
		n.SystemQuery = func(ctx context.Context) (sync.SystemResources, error) {
			return sync.SystemResources{CPU: sync.CPUResources{Percent: 3.5, Count: 4}}, nil
		}
	}
	return ta
}

func jsonOutput(t *testing.T, out *bytes.Buffer) gjson.Result {
	start := bytes.IndexByte(out.Bytes(), '{')
	require.GreaterOrEqual(t, start, 0)
	return gjson.Parse(out.String()[start:])
}

func TestNGC_ValidateDriversPrintsJSON(t *testing.T) {
	ta := ngcTestApp(t)

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json", "-validate-drivers"})

	assert.Equal(t, exitOK, code)
	doc := jsonOutput(t, ta.out)
	assert.True(t, doc.Get("drivers_installed").Bool())
	assert.True(t, doc.Get("nvidia_smi").Bool())
	assert.Equal(t, "535.104.05", doc.Get("driver_version").String())
	assert.True(t, doc.Get("cuda_available").Bool())
	assert.Equal(t, "12.2", doc.Get("cuda_version").String())
}

func TestNGC_ValidateDriversMissing(t *testing.T) {
	ta := ngcTestApp(t)
	setup := ta.ngcSetup
	ta.ngcSetup = func(n *sync.NGCClient) {
		setup(n)
		n.DriverQuery = func(ctx context.Context) (string, error) {
			return "", errors.New(`exec: "nvidia-smi": executable file not found in $PATH`)
		}
	}

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json", "-validate-drivers"})

	assert.Equal(t, exitOK, code)
	doc := jsonOutput(t, ta.out)
	assert.False(t, doc.Get("drivers_installed").Bool())
	assert.False(t, doc.Get("cuda_available").Bool())
	assert.Contains(t, doc.Get("error").String(), "nvidia-smi")
}

func TestNGC_GPUInfo(t *testing.T) {
	ta := ngcTestApp(t)

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json", "-gpu-info"})

	assert.Equal(t, exitOK, code)
	doc := jsonOutput(t, ta.out)
	assert.Equal(t, int64(1), doc.Get("gpus.#").Int())
	assert.Equal(t, "Tesla T4", doc.Get("gpus.0.name").String())
	assert.Equal(t, "GPU-abc", doc.Get("gpus.0.uuid").String())
	assert.Equal(t, "2024-01-31T12:00:00.000000Z", doc.Get("timestamp").String())
}

func TestNGC_SystemInfo(t *testing.T) {
	ta := ngcTestApp(t)

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json", "-system-info"})

	assert.Equal(t, exitOK, code)
	doc := jsonOutput(t, ta.out)
	assert.Equal(t, 3.5, doc.Get("cpu.percent").Float())
	assert.Equal(t, int64(4), doc.Get("cpu.count").Int())
	assert.True(t, doc.Get("memory.total").Exists())
	assert.True(t, doc.Get("disk.percent").Exists())
}

func TestNGC_DashboardIncludesHost(t *testing.T) {
	ta := ngcTestApp(t)

	code := ta.run(context.Background(), []string{"ngc", "-config=config.json"})

	assert.Equal(t, exitOK, code)
	assert.Contains(t, ta.out.String(), "Dashboard saved to: reports/nvidia-dashboard.html")
	data, err := util.ReadFile(ta.fs, "reports/nvidia-dashboard.json")
	require.NoError(t, err)
	assert.Equal(t, "Tesla T4", gjson.GetBytes(data, "gpu_info.gpus.0.name").String())
	assert.Equal(t, int64(4), gjson.GetBytes(data, "system_resources.cpu.count").Int())
}

func TestM365_RequiresTenant(t *testing.T) {
	api := newValidationAPI(t, "")
	ta := newTestApp(t, api.URL, sync.MapEnv{
		sync.EnvM365ClientID: "m365-client",
		sync.EnvM365Secret:   "m365-secret",
	})
	config := `{
  "m365": {"base_url": "` + api.URL + `/v1.0", "login_url": "` + api.URL + `"},
  "paths": {"data": "data", "logs": "logs", "reports": "reports"}
}`
	require.NoError(t, util.WriteFile(ta.fs, "m365.json", []byte(config), 0o644))

	code := ta.run(context.Background(), []string{"m365", "-config=m365.json", "-billing-info"})

	assert.Equal(t, exitFatal, code)
	assert.Empty(t, api.Paths())
	assert.Contains(t, ta.err.String(), "M365_TENANT_ID")
}

func TestNewApp_UsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	a := newApp()
	require.NoError(t, util.WriteFile(a.fs, "reports/out.txt", []byte("ok"), 0o644))

	data, err := os.ReadFile(filepath.Join(dir, "reports", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	ta := newTestApp(t, "http://localhost", sync.MapEnv{})
	ta.fs = a.fs
	assert.Equal(t, exitFatal, ta.run(context.Background(), []string{"validation"}))
	assert.Contains(t, ta.err.String(), "configuration file not found: workspace/jpmorgan-config.json")
}

func TestM365_RequiresCredentials(t *testing.T) {
	ta := newTestApp(t, "http://localhost", sync.MapEnv{})

	code := ta.run(context.Background(), []string{"m365", "-config=config.json", "-billing-info"})

	assert.Equal(t, exitFatal, code)
	assert.Contains(t, ta.err.String(), "M365_CLIENT_ID, M365_CLIENT_SECRET")
}
