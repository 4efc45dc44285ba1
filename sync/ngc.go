package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// NGCClient reads the NVIDIA GPU Cloud catalogue and builds the validation
// dashboard. It embeds *Session for shared configuration.
type NGCClient struct {
	*Session

	// DriverQuery runs the driver version query; nil runs nvidia-smi.
	DriverQuery func(ctx context.Context) (string, error)
	// GPUQuery runs the per-GPU csv query; nil runs nvidia-smi.
	GPUQuery func(ctx context.Context) (string, error)
	// CUDAQuery returns the nvidia-smi banner; nil runs nvidia-smi.
	CUDAQuery func(ctx context.Context) (string, error)
	// SystemQuery samples host resources; nil reads them from the host.
	SystemQuery func(ctx context.Context) (SystemResources, error)
}

func NewNGCClient(s *Session) *NGCClient {
	return &NGCClient{Session: s}
}

// modelsFailure is the document returned in place of the catalogue.
func modelsFailure(message string) json.RawMessage {
	out, _ := sjson.SetBytes([]byte(`{"models":[]}`), "error", message)
	return out
}

// Models returns the NGC model catalogue. It never fails: a missing API key
// or a failed request yields {"models": [], "error": "..."}.
func (n *NGCClient) Models(ctx context.Context) json.RawMessage {
	log := n.logger()
	if n.Credentials.NvidiaAPIKey == "" {
		log.Warn("NVIDIA API key not configured")
		return modelsFailure("API key required")
	}

	var body string
	err := n.APIBuilder(strings.TrimSuffix(n.Config.NGC.BaseURL, "/")+"/models", n.httpClient(), "ngc").
		Bearer(n.Credentials.NvidiaAPIKey).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		log.Errorf("Failed to get NGC models: %v", err)
		return modelsFailure(err.Error())
	}
	if !gjson.Valid(body) {
		log.Errorf("Failed to get NGC models: invalid json response")
		return modelsFailure("invalid json response")
	}
	var compact bytes.Buffer
	if err = json.Compact(&compact, []byte(body)); err != nil {
		return modelsFailure(err.Error())
	}
	return compact.Bytes()
}

// DriverValidation is the result of probing the local NVIDIA driver.
type DriverValidation struct {
	DriversInstalled bool   `json:"drivers_installed"`
	CUDAAvailable    bool   `json:"cuda_available"`
	NvidiaSMI        bool   `json:"nvidia_smi"`
	CUDAVersion      string `json:"cuda_version,omitempty"`
	DriverVersion    string `json:"driver_version,omitempty"`
	Error            string `json:"error,omitempty"`
}

func nvidiaSMIDriverVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=driver_version", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ValidateDrivers reports whether nvidia-smi is available, which driver
// version it reports and which CUDA version the driver supports. Multi-GPU
// hosts report the first GPU's driver.
func (n *NGCClient) ValidateDrivers(ctx context.Context) DriverValidation {
	var result DriverValidation
	query := n.DriverQuery
	if query == nil {
		query = nvidiaSMIDriverVersion
	}
	out, err := query(ctx)
	if err != nil {
		n.logger().Errorf("Driver validation failed: %v", err)
		result.Error = err.Error()
		return result
	}
	version := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if version == "" {
		result.Error = "nvidia-smi reported no driver version"
		return result
	}
	result.NvidiaSMI = true
	result.DriversInstalled = true
	result.DriverVersion = version
	result.CUDAVersion, result.CUDAAvailable = n.cudaVersion(ctx)
	return result
}

// Dashboard assembles the validation dashboard document.
func (n *NGCClient) Dashboard(ctx context.Context) (json.RawMessage, error) {
	gpus, err := json.Marshal(n.GPUInfo(ctx))
	if err != nil {
		return nil, err
	}
	system, err := json.Marshal(n.SystemResources(ctx))
	if err != nil {
		return nil, err
	}
	validation, err := json.Marshal(n.ValidateDrivers(ctx))
	if err != nil {
		return nil, err
	}
	out := []byte(`{}`)
	out, err = sjson.SetBytes(out, "timestamp", n.timestamp())
	if err == nil {
		out, err = sjson.SetBytes(out, "organization", n.Config.Organization.ID)
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "gpu_info", gpus)
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "system_resources", system)
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "nvidia_validation", validation)
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "ngc_models", n.Models(ctx))
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "integration_status", []byte(`{"jpmorgan_sync":"connected","microsoft365_admin":"connected","nvidia_dashboard":"active"}`))
	}
	return out, err
}

// SyncWithValidation wraps the dashboard in the envelope handed to the
// validation services integration.
func (n *NGCClient) SyncWithValidation(ctx context.Context) (json.RawMessage, error) {
	dashboard, err := n.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	out := []byte(`{}`)
	out, err = sjson.SetBytes(out, "nvidia_integration.status", "success")
	if err == nil {
		out, err = sjson.SetRawBytes(out, "nvidia_integration.dashboard_data", dashboard)
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "nvidia_integration.sync_timestamp", n.timestamp())
	}
	return out, err
}
