package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/homemade/vsync/sync"
)

func (a app) ngcCommand(ctx context.Context, args []string) int {
	var (
		configFile      string
		dashboard       bool
		validateDrivers bool
		gpuInfo         bool
		systemInfo      bool
		models          bool
		syncValidation  bool
		logLevel        string
	)
	fs := flag.NewFlagSet("ngc", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&configFile, "config", defaultConfigFile, "Configuration file path")
	fs.BoolVar(&dashboard, "dashboard", false, "Build and save the dashboard (default action)")
	fs.BoolVar(&gpuInfo, "gpu-info", false, "Print the local GPUs")
	fs.BoolVar(&systemInfo, "system-info", false, "Print host CPU, memory and disk usage")
	fs.BoolVar(&validateDrivers, "validate-drivers", false, "Print the local NVIDIA driver and CUDA status")
	fs.BoolVar(&models, "models", false, "Print the NGC model catalogue")
	fs.BoolVar(&syncValidation, "sync-jpmorgan", false, "Print the dashboard wrapped for the validation integration")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg, err := sync.LoadOptionalConfig(a.fs, configFile, a.env)
	if err != nil {
		return a.fatal(err)
	}
	log, closeLog, err := a.openLogger(cfg, "nvidia-dashboard", logLevel)
	if err != nil {
		return a.fatal(err)
	}
	defer closeLog()

	ngc := sync.NewNGCClient(a.session(cfg, log))
	if a.ngcSetup != nil {
		a.ngcSetup(ngc)
	}

	switch {
	case gpuInfo:
		return a.printValue(ngc.GPUInfo(ctx))
	case systemInfo:
		return a.printValue(ngc.SystemResources(ctx))
	case validateDrivers:
		return a.printValue(ngc.ValidateDrivers(ctx))
	case models:
		return a.printJSON(ngc.Models(ctx))
	case syncValidation:
		out, err := ngc.SyncWithValidation(ctx)
		if err != nil {
			return a.fatal(err)
		}
		return a.printJSON(out)
	}

	store := sync.ReportStore{FS: a.fs, Dir: cfg.Paths.Reports}
	p, err := ngc.SaveDashboard(ctx, store, "nvidia-dashboard")
	if err != nil {
		return a.fatal(err)
	}
	fmt.Fprintf(a.stdout, "Dashboard saved to: %s\n", p)
	return exitOK
}

func (a app) printValue(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return a.fatal(err)
	}
	return a.printJSON(raw)
}
