// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package generator

import (
	"net/netip"
	"time"

	"flowexporter/common/helpers"
	"flowexporter/common/record"
)

// Configuration describes the configuration for the generator component.
type Configuration struct {
	// Flows describe the flows we want to generate. When empty,
	// nothing is generated.
	Flows []FlowConfiguration `validate:"dive"`
	// Seed defines a seed to add to the random generator. Without
	// one, two generators produce the same data if provided the
	// same flows.
	Seed int64
}

// FlowConfiguration describes the configuration for a flow.
type FlowConfiguration struct {
	// PerSecond defines how many of those flows should be created per second
	PerSecond float64 `validate:"required,gt=0"`
	// PeakHour defines the peak hour
	PeakHour time.Duration `validate:"min=0,max=24h"`
	// Multiplier defines how to multiply the `PerSecond` when near the peak hour
	Multiplier float64 `validate:"required,gt=0"`
	// SrcNet defines the source network to use
	SrcNet netip.Prefix `validate:"required"`
	// DstNet defines the destination network to use. It should be
	// of the same family as SrcNet.
	DstNet netip.Prefix `validate:"required"`
	// SrcPort defines the source port to use
	SrcPort []uint16
	// DstPort defines the destination port to use. When empty, the
	// well-known port of the selected kind is used.
	DstPort []uint16
	// Protocol defines the IP protocol to use
	Protocol []string `validate:"min=1,dive,oneof=tcp udp icmp"`
	// Size defines the average size in bytes of a flow
	Size uint `validate:"isdefault|min=64,isdefault|max=1000000"`
	// Duration is the maximum duration of a flow
	Duration time.Duration `validate:"min=0"`
	// Kinds defines the extension kinds to attach. One of them is
	// chosen for each flow. "basic" means no extension.
	Kinds []record.Kind `validate:"min=1"`
	// ReverseDirectionRatio generate a second flow for each flow
	// generated in the opposite direction, by applying the
	// provided ratio for the Size.
	ReverseDirectionRatio float32 `validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for the generator component.
func DefaultConfiguration() Configuration {
	return Configuration{}
}

// defaultFlowConfiguration contains the values applied to each flow
// configuration when they are not provided.
func defaultFlowConfiguration() FlowConfiguration {
	return FlowConfiguration{
		Multiplier: 1,
		Protocol:   []string{"tcp"},
		Duration:   10 * time.Second,
		Kinds:      []record.Kind{record.KindBasic},
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(
		helpers.DefaultValuesUnmarshallerHook(defaultFlowConfiguration()))
}
