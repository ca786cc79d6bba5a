// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd_test

import (
	"errors"
	"testing"
	"time"

	"flowexporter/cmd"
	"flowexporter/common/daemon"
	"flowexporter/common/helpers"
	"flowexporter/common/reporter"
)

// lifecycle records start and stop events of components sharing it.
type lifecycle struct {
	events []string
}

type startStopComponent struct {
	name     string
	log      *lifecycle
	startErr error
}

func (c *startStopComponent) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.log.events = append(c.log.events, "start "+c.name)
	return nil
}

func (c *startStopComponent) Stop() error {
	c.log.events = append(c.log.events, "stop "+c.name)
	return nil
}

// stopOnlyComponent is stopped without having a Start method.
type stopOnlyComponent struct {
	name string
	log  *lifecycle
}

func (c *stopOnlyComponent) Stop() error {
	c.log.events = append(c.log.events, "stop "+c.name)
	return nil
}

type passiveComponent struct{}

func TestStartStopComponents(t *testing.T) {
	cases := []struct {
		Pos         helpers.Pos
		Description string
		Components  func(*lifecycle) []interface{}
		Error       bool
		Expected    []string
	}{
		{
			Pos:         helpers.Mark(),
			Description: "stopped in reverse order",
			Components: func(l *lifecycle) []interface{} {
				return []interface{}{
					&startStopComponent{name: "http", log: l},
					&stopOnlyComponent{name: "generator", log: l},
					&passiveComponent{},
					&startStopComponent{name: "exporter", log: l},
				}
			},
			Expected: []string{
				"start http",
				"start exporter",
				"stop exporter",
				"stop generator",
				"stop http",
			},
		}, {
			Pos:         helpers.Mark(),
			Description: "start failure stops started components",
			Components: func(l *lifecycle) []interface{} {
				return []interface{}{
					&startStopComponent{name: "http", log: l},
					&startStopComponent{name: "exporter", log: l, startErr: errors.New("no collector")},
					&startStopComponent{name: "generator", log: l},
				}
			},
			Error: true,
			Expected: []string{
				"start http",
				"stop http",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			r := reporter.NewMock(t)
			daemonComponent := daemon.NewMock(t)
			l := &lifecycle{}
			if !tc.Error {
				go func() {
					time.Sleep(10 * time.Millisecond)
					daemonComponent.Terminate()
				}()
			}
			err := cmd.StartStopComponents(r, daemonComponent, tc.Components(l))
			if err != nil && !tc.Error {
				t.Fatalf("%sStartStopComponents() error:\n%+v", tc.Pos, err)
			} else if err == nil && tc.Error {
				t.Fatalf("%sStartStopComponents() did not error", tc.Pos)
			}
			if diff := helpers.Diff(l.events, tc.Expected); diff != "" {
				t.Errorf("%sStartStopComponents() (-got, +want):\n%s", tc.Pos, diff)
			}
		})
	}
}
