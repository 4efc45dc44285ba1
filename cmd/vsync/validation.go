package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/homemade/vsync/sync"
)

const defaultConfigFile = "workspace/jpmorgan-config.json"

// syncTypes are the accepted -sync-type values.
var syncTypes = []string{"accounts", "entities", "payroll", "all"}

type validationOptions struct {
	configFile  string
	healthCheck bool
	syncType    string
	dataSource  string
	report      bool
	strict      bool
	describe    bool
	logLevel    string
	record      bool
}

func (a app) parseValidationFlags(args []string) (validationOptions, error) {
	var opts validationOptions
	fs := flag.NewFlagSet("validation", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&opts.configFile, "config", defaultConfigFile, "Configuration file path")
	fs.BoolVar(&opts.healthCheck, "health-check", false, "Probe every configured endpoint and exit")
	fs.StringVar(&opts.syncType, "sync-type", "all", "Type of sync to perform ("+strings.Join(syncTypes, ", ")+")")
	fs.StringVar(&opts.dataSource, "data-source", sync.LocalDataSource, "Data source for validation batches")
	fs.BoolVar(&opts.report, "report", false, "Print and save a sync report")
	fs.BoolVar(&opts.strict, "strict", false, "Exit with status 2 when the sync stops early")
	fs.BoolVar(&opts.describe, "describe", false, "Print the configured endpoints as CSV and exit")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.record, "record", false, "Record HTTP exchanges for use as test fixtures")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if !slices.Contains(syncTypes, opts.syncType) {
		err := fmt.Errorf("invalid -sync-type %q: choose from %s", opts.syncType, strings.Join(syncTypes, ", "))
		fmt.Fprintln(a.stderr, err)
		fs.Usage()
		return opts, err
	}
	return opts, nil
}

// openLogger creates the run's logger under the configured logs directory.
func (a app) openLogger(cfg sync.Config, name string, level string) (*logrus.Logger, func() error, error) {
	log, closeLog, err := sync.NewLogger(a.stdout, a.fs, cfg.Paths.Logs, name, a.now())
	if err != nil {
		return nil, nil, err
	}
	sync.SetLogLevel(log, level)
	return log, closeLog, nil
}

func (a app) validationCommand(ctx context.Context, args []string) int {
	opts, err := a.parseValidationFlags(args)
	if err != nil {
		return exitFatal
	}

	cfg, err := sync.LoadConfig(a.fs, opts.configFile, a.env)
	if err != nil {
		return a.fatal(err)
	}

	if opts.describe {
		out, err := sync.GenerateEndpointDocumentation(cfg).FormatCSV()
		if err != nil {
			return a.fatal(err)
		}
		fmt.Fprint(a.stdout, out)
		return exitOK
	}

	log, closeLog, err := a.openLogger(cfg, "validation-sync", opts.logLevel)
	if err != nil {
		return a.fatal(err)
	}
	defer closeLog()

	if err = sync.RequireEnv(a.env, cfg.Credentials.Required...); err != nil {
		log.Error(err)
		return a.fatal(err)
	}

	s := a.session(cfg, log)
	s.RecordRequests = opts.record

	if opts.healthCheck {
		health := s.HealthCheck(ctx)
		out, err := json.MarshalIndent(health, "", "  ")
		if err != nil {
			return a.fatal(err)
		}
		fmt.Fprintln(a.stdout, string(out))
		return exitOK
	}

	if opts.syncType != "all" {
		log.Warnf("Individual sync type '%s' not yet implemented", opts.syncType)
		fmt.Fprintf(a.stdout, "Individual sync type '%s' not yet implemented\n", opts.syncType)
		return exitOK
	}

	report := s.SyncAll(ctx, s.SourceFor(a.fs, opts.dataSource))

	if opts.report {
		fmt.Fprint(a.stdout, report.Render())
		store := sync.ReportStore{FS: a.fs, Dir: cfg.Paths.Reports}
		jsonPath, _, err := store.Save(report, a.now())
		if err != nil {
			log.Errorf("Failed to save report: %v", err)
		} else {
			fmt.Fprintf(a.stdout, "Report saved to: %s\n", jsonPath)
		}
	}

	if report.Status() != sync.StatusComplete && opts.strict {
		return exitPartial
	}
	return exitOK
}
