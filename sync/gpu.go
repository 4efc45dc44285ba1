package sync

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// gpuQueryFields are requested from nvidia-smi in this order.
var gpuQueryFields = []string{
	"index", "name", "driver_version", "memory.total", "memory.free",
	"memory.used", "utilization.gpu", "temperature.gpu", "uuid",
}

// GPU is one device as reported by nvidia-smi. Memory is in MiB.
type GPU struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Driver         string  `json:"driver"`
	MemoryTotal    float64 `json:"memory_total"`
	MemoryFree     float64 `json:"memory_free"`
	MemoryUsed     float64 `json:"memory_used"`
	GPUUtilization float64 `json:"gpu_utilization"`
	Temperature    float64 `json:"temperature"`
	UUID           string  `json:"uuid"`
}

type GPUInfo struct {
	GPUs      []GPU  `json:"gpus"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

func nvidiaSMIGPUs(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu="+strings.Join(gpuQueryFields, ","),
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// parseGPUs reads nvidia-smi csv rows. Fields nvidia-smi cannot report
// ("[N/A]", "[Not Supported]") are left zero.
func parseGPUs(out string) ([]GPU, error) {
	gpus := []GPU{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != len(gpuQueryFields) {
			return nil, fmt.Errorf("unexpected nvidia-smi row: %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		id, _ := strconv.Atoi(fields[0])
		gpus = append(gpus, GPU{
			ID:             id,
			Name:           fields[1],
			Driver:         fields[2],
			MemoryTotal:    parseMetric(fields[3]),
			MemoryFree:     parseMetric(fields[4]),
			MemoryUsed:     parseMetric(fields[5]),
			GPUUtilization: parseMetric(fields[6]),
			Temperature:    parseMetric(fields[7]),
			UUID:           fields[8],
		})
	}
	return gpus, nil
}

func parseMetric(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// GPUInfo lists the local GPUs. It never fails: a missing nvidia-smi yields
// an empty list with the error recorded.
func (n *NGCClient) GPUInfo(ctx context.Context) GPUInfo {
	info := GPUInfo{GPUs: []GPU{}, Timestamp: n.timestamp()}
	query := n.GPUQuery
	if query == nil {
		query = nvidiaSMIGPUs
	}
	out, err := query(ctx)
	if err == nil {
		info.GPUs, err = parseGPUs(out)
	}
	if err != nil {
		n.logger().Errorf("Failed to get GPU info: %v", err)
		info.GPUs = []GPU{}
		info.Error = err.Error()
	}
	return info
}

var cudaVersionPattern = regexp.MustCompile(`CUDA Version:\s*([0-9.]+)`)

func nvidiaSMIBanner(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// cudaVersion returns the CUDA version printed in the nvidia-smi banner.
func (n *NGCClient) cudaVersion(ctx context.Context) (string, bool) {
	query := n.CUDAQuery
	if query == nil {
		query = nvidiaSMIBanner
	}
	out, err := query(ctx)
	if err != nil {
		n.logger().Warnf("CUDA validation unavailable: %v", err)
		return "", false
	}
	m := cudaVersionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type CPUResources struct {
	Percent   float64  `json:"percent"`
	Count     int      `json:"count"`
	Frequency *float64 `json:"frequency"` // MHz, nil when unknown
}

type MemoryResources struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available"`
	Used      uint64  `json:"used"`
	Free      uint64  `json:"free"`
	Percent   float64 `json:"percent"`
}

type DiskResources struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// SystemResources is a point-in-time view of host utilisation. Byte counts
// are in bytes.
type SystemResources struct {
	CPU       CPUResources    `json:"cpu"`
	Memory    MemoryResources `json:"memory"`
	Disk      DiskResources   `json:"disk"`
	Timestamp string          `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// cpuSampleInterval is how long CPU utilisation is sampled for.
const cpuSampleInterval = time.Second

func hostResources(ctx context.Context) (SystemResources, error) {
	var r SystemResources
	percent, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return r, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percent) > 0 {
		r.CPU.Percent = percent[0]
	}
	if r.CPU.Count, err = cpu.CountsWithContext(ctx, true); err != nil {
		return r, fmt.Errorf("cpu count: %w", err)
	}
	if info, err := cpu.InfoWithContext(ctx); err == nil && len(info) > 0 && info[0].Mhz > 0 {
		mhz := info[0].Mhz
		r.CPU.Frequency = &mhz
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return r, fmt.Errorf("virtual memory: %w", err)
	}
	r.Memory = MemoryResources{
		Total:     vm.Total,
		Available: vm.Available,
		Used:      vm.Used,
		Free:      vm.Free,
		Percent:   vm.UsedPercent,
	}

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return r, fmt.Errorf("disk usage: %w", err)
	}
	r.Disk = DiskResources{
		Total:   du.Total,
		Used:    du.Used,
		Free:    du.Free,
		Percent: du.UsedPercent,
	}
	return r, nil
}

// SystemResources samples host CPU, memory and root disk usage. Failures are
// logged and recorded in Error alongside whatever was collected.
func (n *NGCClient) SystemResources(ctx context.Context) SystemResources {
	query := n.SystemQuery
	if query == nil {
		query = hostResources
	}
	r, err := query(ctx)
	if err != nil {
		n.logger().Errorf("Failed to get system resources: %v", err)
		r.Error = err.Error()
	}
	r.Timestamp = n.timestamp()
	return r
}
