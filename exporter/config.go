// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package exporter

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"flowexporter/common/helpers"
	"flowexporter/exporter/ipfix"
)

// Configuration describes the configuration for the exporter component.
type Configuration struct {
	// Configuration is the configuration of the IPFIX session.
	ipfix.Configuration `mapstructure:",squash" yaml:",inline"`
	// QueueSize is the number of flows waiting to be encoded. When the
	// queue is full, new flows are dropped.
	QueueSize int `validate:"min=1"`
	// FlushInterval is the maximum time a record waits in a buffer
	// before being sent.
	FlushInterval time.Duration `validate:"min=10ms"`
	// RateLimit is the maximum number of flows accepted per second. 0
	// disables the limit.
	RateLimit float64 `validate:"min=0"`
	// RateBurst is the number of flows accepted above RateLimit in a
	// burst. It defaults to RateLimit.
	RateBurst int `validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for the exporter component.
func DefaultConfiguration() Configuration {
	return Configuration{
		Configuration: ipfix.DefaultConfiguration(),
		QueueSize:     10000,
		FlushInterval: time.Second,
	}
}

// ConfigurationUnmarshallerHook builds the target from separate "host"
// and "port" keys.
func ConfigurationUnmarshallerHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (interface{}, error) {
		if from.Kind() != reflect.Map || from.IsNil() || to.Type() != reflect.TypeOf(Configuration{}) {
			return from.Interface(), nil
		}
		var hostKey, portKey, targetKey *reflect.Value
		fromKeys := from.MapKeys()
		for i, k := range fromKeys {
			k = helpers.ElemOrIdentity(k)
			if k.Kind() != reflect.String {
				return from.Interface(), nil
			}
			switch {
			case helpers.MapStructureMatchName(k.String(), "Host"):
				hostKey = &fromKeys[i]
			case helpers.MapStructureMatchName(k.String(), "Port"):
				portKey = &fromKeys[i]
			case helpers.MapStructureMatchName(k.String(), "Target"):
				targetKey = &fromKeys[i]
			}
		}
		if hostKey == nil && portKey == nil {
			return from.Interface(), nil
		}
		if targetKey != nil {
			return nil, errors.New("cannot have both target and host/port")
		}
		if hostKey == nil || portKey == nil {
			return nil, errors.New("host and port should be provided together")
		}
		host := helpers.ElemOrIdentity(from.MapIndex(*hostKey))
		port := helpers.ElemOrIdentity(from.MapIndex(*portKey))
		var portStr string
		switch port.Kind() {
		case reflect.String:
			portStr = port.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			portStr = strconv.FormatInt(port.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			portStr = strconv.FormatUint(port.Uint(), 10)
		default:
			return nil, fmt.Errorf("invalid port type %s", port.Kind())
		}
		if host.Kind() != reflect.String {
			return nil, fmt.Errorf("invalid host type %s", host.Kind())
		}
		from.SetMapIndex(reflect.ValueOf("target"), reflect.ValueOf(net.JoinHostPort(host.String(), portStr)))
		from.SetMapIndex(*hostKey, reflect.Value{})
		from.SetMapIndex(*portKey, reflect.Value{})
		return from.Interface(), nil
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(ConfigurationUnmarshallerHook())
	helpers.RegisterMapstructureUnmarshallerHook(
		helpers.RenameKeyUnmarshallerHook(Configuration{}, "ODID", "ObservationDomainID"))
	helpers.RegisterMapstructureUnmarshallerHook(
		helpers.RenameKeyUnmarshallerHook(Configuration{}, "DirBitField", "Direction"))
}
