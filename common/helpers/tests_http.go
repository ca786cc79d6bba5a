// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package helpers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

// HTTPEndpointCases describes case for TestHTTPEndpoints
type HTTPEndpointCases []struct {
	Pos         Pos
	Description string
	URL         string

	ContentType string
	StatusCode  int
	FirstLines  []string
	JSONOutput  gin.H
}

// TestHTTPEndpoints issues GET requests against a running server and
// checks status, content type and body of each answer.
func TestHTTPEndpoints(t *testing.T, serverAddr net.Addr, cases HTTPEndpointCases) {
	t.Helper()
	for _, tc := range cases {
		desc := tc.Description
		if desc == "" {
			desc = tc.URL
		}
		t.Run(desc, func(t *testing.T) {
			t.Helper()
			if tc.FirstLines != nil && tc.JSONOutput != nil {
				t.Fatalf("%sCannot have both FirstLines and JSONOutput", tc.Pos)
			}
			resp, err := http.Get(fmt.Sprintf("http://%s%s", serverAddr, tc.URL))
			if err != nil {
				t.Fatalf("%sGET %s:\n%+v", tc.Pos, tc.URL, err)
			}
			defer resp.Body.Close()
			if tc.StatusCode == 0 {
				tc.StatusCode = 200
			}
			if resp.StatusCode != tc.StatusCode {
				t.Errorf("%sGET %s: got status code %d, not %d",
					tc.Pos, tc.URL, resp.StatusCode, tc.StatusCode)
			}
			if tc.JSONOutput != nil {
				tc.ContentType = "application/json; charset=utf-8"
			}
			gotContentType := resp.Header.Get("Content-Type")
			if gotContentType != tc.ContentType {
				t.Errorf("%sGET %s Content-Type (-got, +want):\n-%s\n+%s",
					tc.Pos, tc.URL, gotContentType, tc.ContentType)
			}
			if tc.JSONOutput == nil {
				reader := bufio.NewScanner(resp.Body)
				got := []string{}
				for reader.Scan() && len(got) < len(tc.FirstLines) {
					got = append(got, reader.Text())
				}
				if tc.FirstLines == nil {
					tc.FirstLines = []string{}
				}
				if diff := Diff(got, tc.FirstLines); diff != "" {
					t.Errorf("%sGET %s (-got, +want):\n%s", tc.Pos, tc.URL, diff)
				}
			} else {
				decoder := json.NewDecoder(resp.Body)
				var got gin.H
				if err := decoder.Decode(&got); err != nil {
					t.Fatalf("%sGET %s:\n%+v", tc.Pos, tc.URL, err)
				}

				// Encode/decode expected to compare JSON stuff
				var expected gin.H
				expectedBytes, err := json.Marshal(tc.JSONOutput)
				if err != nil {
					t.Fatalf("json.Marshal() error:\n%+v", err)
				}
				if err := json.Unmarshal(expectedBytes, &expected); err != nil {
					t.Fatalf("json.Unmarshal() error:\n%+v", err)
				}

				if diff := Diff(got, expected); diff != "" {
					t.Fatalf("%sGET %s (-got, +want):\n%s", tc.Pos, tc.URL, diff)
				}
			}
		})
	}
}
