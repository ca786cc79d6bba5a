// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowexporter/common/daemon"
	"flowexporter/common/httpserver"
	"flowexporter/common/reporter"
	"flowexporter/exporter"
	"flowexporter/generator"
)

// ExporterConfiguration represents the configuration file for the exporter command.
type ExporterConfiguration struct {
	Reporting reporter.Configuration
	HTTP      httpserver.Configuration
	Exporter  exporter.Configuration
	Generator generator.Configuration
}

// Reset sets the default configuration for the exporter command.
func (c *ExporterConfiguration) Reset() {
	*c = ExporterConfiguration{
		HTTP:      httpserver.DefaultConfiguration(),
		Reporting: reporter.DefaultConfiguration(),
		Exporter:  exporter.DefaultConfiguration(),
		Generator: generator.DefaultConfiguration(),
	}
}

type exporterOptions struct {
	ConfigRelatedOptions
	CheckMode bool
}

// ExporterOptions stores the command-line option values for the exporter
// command.
var ExporterOptions exporterOptions

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Start the IPFIX exporter",
	Long: `The exporter encodes flow records with their application
extensions (HTTP, SMTP, HTTPS, NTP, SIP) and sends them to an IPFIX
collector. Flows are produced by the built-in generator.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := ExporterConfiguration{}
		ExporterOptions.Path = args[0]
		if err := ExporterOptions.Parse(cmd.OutOrStdout(), "exporter", &config); err != nil {
			return err
		}

		r, err := reporter.New(config.Reporting)
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		return exporterStart(r, config, ExporterOptions.CheckMode)
	},
}

func init() {
	RootCmd.AddCommand(exporterCmd)
	exporterCmd.Flags().BoolVarP(&ExporterOptions.ConfigRelatedOptions.Dump, "dump", "D", false,
		"Dump configuration before starting")
	exporterCmd.Flags().BoolVarP(&ExporterOptions.CheckMode, "check", "C", false,
		"Check configuration, but does not start")
}

func exporterStart(r *reporter.Reporter, config ExporterConfiguration, checkOnly bool) error {
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	httpComponent, err := httpserver.New(r, "exporter", config.HTTP, httpserver.Dependencies{
		Daemon: daemonComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize HTTP component: %w", err)
	}
	exporterComponent, err := exporter.New(r, config.Exporter, exporter.Dependencies{
		Daemon: daemonComponent,
		HTTP:   httpComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize exporter component: %w", err)
	}
	generatorComponent, err := generator.New(r, config.Generator, generator.Dependencies{
		Daemon: daemonComponent,
		Sink:   exporterComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize generator component: %w", err)
	}

	// Expose some information and metrics
	addCommonHTTPHandlers(r, "exporter", httpComponent)
	versionMetrics(r)

	// If we only asked for a check, stop here.
	if checkOnly {
		return nil
	}

	// Start all the components. The generator is stopped first.
	components := []interface{}{
		httpComponent,
		exporterComponent,
		generatorComponent,
	}
	return StartStopComponents(r, daemonComponent, components)
}
