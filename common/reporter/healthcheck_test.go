// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package reporter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowexporter/common/helpers"
	"flowexporter/common/reporter"

	"github.com/gin-gonic/gin"
)

func staticHealthcheck(status reporter.HealthcheckStatus, reason string) reporter.HealthcheckFunc {
	return func(context.Context) reporter.HealthcheckResult {
		return reporter.HealthcheckResult{Status: status, Reason: reason}
	}
}

func TestRunHealthchecks(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Checks   map[string]reporter.HealthcheckFunc
		Expected reporter.MultipleHealthcheckResults
	}{
		{
			Pos: helpers.Mark(),
			Expected: reporter.MultipleHealthcheckResults{
				Status:  reporter.HealthcheckOK,
				Details: map[string]reporter.HealthcheckResult{},
			},
		}, {
			Pos: helpers.Mark(),
			Checks: map[string]reporter.HealthcheckFunc{
				"exporter": staticHealthcheck(reporter.HealthcheckOK, "connected"),
			},
			Expected: reporter.MultipleHealthcheckResults{
				Status: reporter.HealthcheckOK,
				Details: map[string]reporter.HealthcheckResult{
					"exporter": {reporter.HealthcheckOK, "connected"},
				},
			},
		}, {
			Pos: helpers.Mark(),
			Checks: map[string]reporter.HealthcheckFunc{
				"exporter": staticHealthcheck(reporter.HealthcheckWarning, "reconnect pending"),
				"http":     staticHealthcheck(reporter.HealthcheckOK, "listening"),
			},
			Expected: reporter.MultipleHealthcheckResults{
				Status: reporter.HealthcheckWarning,
				Details: map[string]reporter.HealthcheckResult{
					"exporter": {reporter.HealthcheckWarning, "reconnect pending"},
					"http":     {reporter.HealthcheckOK, "listening"},
				},
			},
		}, {
			Pos: helpers.Mark(),
			Checks: map[string]reporter.HealthcheckFunc{
				"exporter": staticHealthcheck(reporter.HealthcheckWarning, "reconnect pending"),
				"http":     staticHealthcheck(reporter.HealthcheckError, "not listening"),
			},
			Expected: reporter.MultipleHealthcheckResults{
				Status: reporter.HealthcheckError,
				Details: map[string]reporter.HealthcheckResult{
					"exporter": {reporter.HealthcheckWarning, "reconnect pending"},
					"http":     {reporter.HealthcheckError, "not listening"},
				},
			},
		},
	}
	for _, tc := range cases {
		r := reporter.NewMock(t)
		for name, check := range tc.Checks {
			r.RegisterHealthcheck(name, check)
		}
		got := r.RunHealthchecks(context.Background())
		if diff := helpers.Diff(got, tc.Expected); diff != "" {
			t.Errorf("%sRunHealthchecks() (-got, +want):\n%s", tc.Pos, diff)
		}
	}
}

func TestHealthcheckLateAnswer(t *testing.T) {
	// A check answering after the context expired is reported as a timeout.
	r := reporter.NewMock(t)
	r.RegisterHealthcheck("exporter", func(ctx context.Context) reporter.HealthcheckResult {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return reporter.HealthcheckResult{Status: reporter.HealthcheckOK, Reason: "connected"}
	})
	r.RegisterHealthcheck("http", staticHealthcheck(reporter.HealthcheckOK, "listening"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got := r.RunHealthchecks(ctx)
	expected := reporter.MultipleHealthcheckResults{
		Status: reporter.HealthcheckError,
		Details: map[string]reporter.HealthcheckResult{
			"exporter": {reporter.HealthcheckError, "timeout during check"},
			"http":     {reporter.HealthcheckOK, "listening"},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("RunHealthchecks() (-got, +want):\n%s", diff)
	}
}

func TestChannelHealthcheck(t *testing.T) {
	// Mimic the exporter worker loop answering with its session state.
	healthy := make(chan reporter.ChannelHealthcheckFunc)
	go func() {
		select {
		case cb := <-healthy:
			cb(reporter.HealthcheckWarning, "reconnect pending")
		case <-time.After(50 * time.Millisecond):
		}
	}()

	r := reporter.NewMock(t)
	r.RegisterHealthcheck("exporter", reporter.ChannelHealthcheck(context.Background(), healthy))
	got := r.RunHealthchecks(context.Background())
	expected := reporter.MultipleHealthcheckResults{
		Status: reporter.HealthcheckWarning,
		Details: map[string]reporter.HealthcheckResult{
			"exporter": {reporter.HealthcheckWarning, "reconnect pending"},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("RunHealthchecks() (-got, +want):\n%s", diff)
	}

	// Once the worker is gone, the check reports it as dead.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	check := reporter.ChannelHealthcheck(ctx, healthy)
	if got := check(context.Background()); got.Status != reporter.HealthcheckError || got.Reason != "dead" {
		t.Errorf("ChannelHealthcheck() after stop = %+v", got)
	}
}

func TestHealthcheckHTTPHandler(t *testing.T) {
	r := reporter.NewMock(t)
	r.RegisterHealthcheck("exporter", staticHealthcheck(reporter.HealthcheckError, "collector unreachable"))

	req := httptest.NewRequest("GET", "/api/v0/healthcheck", nil)
	w := httptest.NewRecorder()
	router := gin.New()
	router.GET("/api/v0/healthcheck", r.HealthcheckHTTPHandler)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /api/v0/healthcheck status code, got %d, expected %d",
			w.Code, http.StatusServiceUnavailable)
	}

	var got gin.H
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("GET /api/v0/healthcheck error:\n%+v", err)
	}
	expected := gin.H{
		"status": "error",
		"details": map[string]any{
			"exporter": map[string]any{
				"status": "error",
				"reason": "collector unreachable",
			},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("GET /api/v0/healthcheck (-got, +want):\n%s", diff)
	}
}
