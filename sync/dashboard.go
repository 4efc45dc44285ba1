package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>NVIDIA Validation Dashboard - {{.Organization}}</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #111; color: #eee; }
h1 { color: #76b900; }
table { border-collapse: collapse; }
td, th { border: 1px solid #444; padding: 4px 8px; text-align: left; }
.bad { color: #e55; }
.gpu-grid { display: flex; flex-wrap: wrap; gap: 1em; }
.gpu-card { border: 1px solid #444; padding: 1em; min-width: 16em; }
.status.active { color: #76b900; }
.status.warning { color: #e5a50a; }
</style>
</head>
<body>
<h1>NVIDIA Validation Dashboard</h1>
<p>Organization: {{.Organization}}<br>Generated: {{.Timestamp}}</p>
<h2>System Overview</h2>
{{with .SystemError}}<p class="bad">{{.}}</p>{{end}}
<table>
<tr><td>CPU Usage</td><td>{{printf "%.1f" .CPUPercent}}%</td></tr>
<tr><td>Memory Usage</td><td>{{printf "%.1f" .MemoryPercent}}%</td></tr>
<tr><td>Disk Usage</td><td>{{printf "%.1f" .DiskPercent}}%</td></tr>
</table>
<h2>GPUs</h2>
{{with .GPUError}}<p class="bad">{{.}}</p>{{end}}
<div class="gpu-grid">
{{range .GPUs}}<div class="gpu-card">
<h3>{{.Name}}</h3>
<p>Memory: {{printf "%.0f" .MemoryUsed}}/{{printf "%.0f" .MemoryTotal}} MB</p>
<p>Utilization: {{printf "%.1f" .Utilization}}%</p>
<p>Temperature: {{printf "%.0f" .Temperature}}°C</p>
<p>Status: {{if .Hot}}<span class="status warning">Warning</span>{{else}}<span class="status active">Active</span>{{end}}</p>
</div>
{{end}}</div>
<h2>Driver</h2>
{{if .DriversInstalled}}<p>Driver version {{.DriverVersion}}</p>{{else}}<p class="bad">Drivers not detected{{with .DriverError}}: {{.}}{{end}}</p>{{end}}
{{if .CUDAAvailable}}<p>CUDA {{.CUDAVersion}}</p>{{else}}<p class="bad">CUDA not available</p>{{end}}
<h2>NGC Models</h2>
{{with .ModelsError}}<p class="bad">{{.}}</p>{{end}}
{{if .Models}}<table>
<tr><th>Model</th><th>Description</th></tr>
{{range .Models}}<tr><td>{{.Name}}</td><td>{{.Description}}</td></tr>
{{end}}</table>{{end}}
<h2>Integrations</h2>
<table>
{{range .Integrations}}<tr><td>{{.Name}}</td><td>{{.Status}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type dashboardModel struct {
	Name        string
	Description string
}

// gpuWarnTemperature is the temperature, in °C, at which a GPU card is
// flagged.
const gpuWarnTemperature = 80

type dashboardGPU struct {
	Name        string
	MemoryUsed  float64
	MemoryTotal float64
	Utilization float64
	Temperature float64
	Hot         bool
}

type dashboardIntegration struct {
	Name   string
	Status string
}

type dashboardView struct {
	Organization     string
	Timestamp        string
	DriversInstalled bool
	DriverVersion    string
	DriverError      string
	CUDAAvailable    bool
	CUDAVersion      string
	CPUPercent       float64
	MemoryPercent    float64
	DiskPercent      float64
	SystemError      string
	GPUs             []dashboardGPU
	GPUError         string
	ModelsError      string
	Models           []dashboardModel
	Integrations     []dashboardIntegration
}

func newDashboardView(dashboard json.RawMessage) dashboardView {
	doc := NewDocument(dashboard)
	var view dashboardView
	view.Organization, _ = doc.StringForPath("organization")
	view.Timestamp, _ = doc.StringForPath("timestamp")
	view.DriversInstalled, _ = doc.BoolForPath("nvidia_validation.drivers_installed")
	view.DriverVersion, _ = doc.StringForPath("nvidia_validation.driver_version")
	view.DriverError, _ = doc.StringForPath("nvidia_validation.error")
	view.CUDAAvailable, _ = doc.BoolForPath("nvidia_validation.cuda_available")
	view.CUDAVersion, _ = doc.StringForPath("nvidia_validation.cuda_version")
	view.CPUPercent, _ = doc.FloatForPath("system_resources.cpu.percent")
	view.MemoryPercent, _ = doc.FloatForPath("system_resources.memory.percent")
	view.DiskPercent, _ = doc.FloatForPath("system_resources.disk.percent")
	view.SystemError, _ = doc.StringForPath("system_resources.error")
	view.GPUError, _ = doc.StringForPath("gpu_info.error")
	for _, g := range doc.Items("gpu_info.gpus") {
		gpu := dashboardGPU{Name: stringOr(g, "name", "N/A")}
		gpu.MemoryUsed, _ = g.FloatForPath("memory_used")
		gpu.MemoryTotal, _ = g.FloatForPath("memory_total")
		gpu.Utilization, _ = g.FloatForPath("gpu_utilization")
		gpu.Temperature, _ = g.FloatForPath("temperature")
		gpu.Hot = gpu.Temperature >= gpuWarnTemperature
		view.GPUs = append(view.GPUs, gpu)
	}
	view.ModelsError, _ = doc.StringForPath("ngc_models.error")
	for _, m := range doc.Items("ngc_models.models") {
		view.Models = append(view.Models, dashboardModel{
			Name:        stringOr(m, "displayName", stringOr(m, "name", "N/A")),
			Description: stringOr(m, "description", ""),
		})
	}
	for _, name := range []string{"jpmorgan_sync", "microsoft365_admin", "nvidia_dashboard"} {
		view.Integrations = append(view.Integrations, dashboardIntegration{
			Name:   name,
			Status: stringOr(doc, "integration_status."+name, "unknown"),
		})
	}
	return view
}

// RenderDashboardHTML renders a dashboard document as a standalone HTML page.
func RenderDashboardHTML(dashboard json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, newDashboardView(dashboard)); err != nil {
		return "", fmt.Errorf("failed to render dashboard: %w", err)
	}
	return buf.String(), nil
}

// SaveDashboard builds the dashboard and writes <name>.html and <name>.json
// to store, returning the HTML path.
func (n *NGCClient) SaveDashboard(ctx context.Context, store ReportStore, name string) (string, error) {
	dashboard, err := n.Dashboard(ctx)
	if err != nil {
		return "", err
	}
	html, err := RenderDashboardHTML(dashboard)
	if err != nil {
		return "", err
	}
	if _, err = store.Write(name+".json", dashboard); err != nil {
		return "", err
	}
	p, err := store.Write(name+".html", []byte(html))
	if err != nil {
		return "", err
	}
	n.logger().Infof("Dashboard saved to %s", p)
	return p, nil
}
