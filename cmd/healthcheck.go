// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	HTTP        string
	UnixService string
}

// HealthcheckOptions stores the command-line option values for the healthcheck
// command.
var HealthcheckOptions healthcheckOptions

func init() {
	RootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().StringVarP(&HealthcheckOptions.HTTP, "http", "", "",
		"HTTP host:port for health check")
	healthcheckCmd.Flags().StringVarP(&HealthcheckOptions.UnixService, "service", "", "",
		"Service to query over Unix socket")
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check healthness",
	Long: `Check if flowexporter is alive using the builtin HTTP endpoint.
Without options, the health of any local service is checked over an
abstract Unix socket.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if HealthcheckOptions.HTTP != "" && HealthcheckOptions.UnixService != "" {
			return errors.New("--http and --service are mutually exclusive")
		}
		transport := &http.Transport{}
		host := HealthcheckOptions.HTTP
		if host == "" {
			socket := "@flowexporter"
			if HealthcheckOptions.UnixService != "" {
				socket = fmt.Sprintf("@flowexporter/%s", HealthcheckOptions.UnixService)
			}
			transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			}
			host = "unix"
		}
		client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/api/v0/healthcheck", host))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service is unhealthy (%s)", resp.Status)
		}
		cmd.Println("ok")
		return nil
	},
}
