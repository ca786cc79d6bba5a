// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowexporter/common/helpers"
	"flowexporter/common/reporter"
	"flowexporter/exporter/ipfix"
)

func TestExporterStart(t *testing.T) {
	r := reporter.NewMock(t)
	config := ExporterConfiguration{}
	config.Reset()
	if err := exporterStart(r, config, true); err != nil {
		t.Fatalf("exporterStart() error:\n%+v", err)
	}
}

func TestExporterConfiguration(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "exporter.yaml")
	os.WriteFile(configFile, []byte(`---
exporter:
  host: 192.0.2.10
  port: 4739
  protocol: udp
  queue-size: 100
generator:
  flows:
    - per-second: 5
      src-net: 192.0.2.0/24
      dst-net: 203.0.113.0/24
      kinds: [http, ntp]
`), 0644)
	t.Setenv("FLOWEXPORTER_EXPORTER_EXPORTER_OBSERVATIONDOMAINID", "12")

	c := ConfigRelatedOptions{Path: configFile, Dump: true}
	config := ExporterConfiguration{}
	out := new(bytes.Buffer)
	if err := c.Parse(out, "exporter", &config); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	got := []interface{}{
		config.Exporter.Target,
		config.Exporter.Protocol,
		config.Exporter.ObservationDomainID,
		config.Exporter.QueueSize,
		len(config.Generator.Flows),
		config.Generator.Flows[0].Multiplier,
		config.HTTP.Listen,
	}
	expected := []interface{}{
		"192.0.2.10:4739",
		ipfix.ProtocolUDP,
		uint32(12),
		100,
		1,
		1.0,
		"0.0.0.0:8080",
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}
	if !strings.Contains(out.String(), "target: 192.0.2.10:4739") {
		t.Errorf("Parse() dump does not contain target:\n%s", out.String())
	}

	r := reporter.NewMock(t)
	if err := exporterStart(r, config, true); err != nil {
		t.Fatalf("exporterStart() error:\n%+v", err)
	}
}

func TestExporterSampleConfiguration(t *testing.T) {
	c := ConfigRelatedOptions{Path: filepath.Join("..", "config", "exporter.yaml")}
	config := ExporterConfiguration{}
	if err := c.Parse(new(bytes.Buffer), "exporter", &config); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	if len(config.Generator.Flows) != 3 {
		t.Errorf("Parse() got %d flows, expected 3", len(config.Generator.Flows))
	}
	if config.Exporter.ReconnectBackoff != ipfix.BackoffExponential {
		t.Errorf("Parse() ReconnectBackoff = %s, expected exponential", config.Exporter.ReconnectBackoff)
	}
	r := reporter.NewMock(t)
	if err := exporterStart(r, config, true); err != nil {
		t.Fatalf("exporterStart() error:\n%+v", err)
	}
}
