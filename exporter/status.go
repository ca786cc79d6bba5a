// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package exporter

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Status is a snapshot of the IPFIX session state.
type Status struct {
	Target          string           `json:"target"`
	Protocol        string           `json:"protocol"`
	Connected       bool             `json:"connected"`
	SequenceNumber  uint32           `json:"sequence-number"`
	ExportedPackets uint64           `json:"exported-packets"`
	PendingRecords  int              `json:"pending-records"`
	QueuedFlows     int              `json:"queued-flows"`
	Templates       []TemplateStatus `json:"templates"`
}

// TemplateStatus is the state of one template.
type TemplateStatus struct {
	ID       uint16 `json:"id"`
	Fields   int    `json:"fields"`
	Exported bool   `json:"exported"`
}

// status builds the current status. It should only be called by the worker.
func (c *Component) status() Status {
	status := Status{
		Target:          c.config.Target,
		Protocol:        c.config.Protocol.String(),
		Connected:       c.session.Connected(),
		SequenceNumber:  c.session.SequenceNumber(),
		ExportedPackets: c.session.ExportedPackets(),
		PendingRecords:  c.session.Pending(),
		QueuedFlows:     len(c.queue),
		Templates:       []TemplateStatus{},
	}
	for _, t := range c.session.Templates() {
		status.Templates = append(status.Templates, TemplateStatus{
			ID:       t.ID,
			Fields:   len(t.Fields),
			Exported: t.Exported(),
		})
	}
	return status
}

// Status returns the current status of the IPFIX session. It returns
// false if the component is not running.
func (c *Component) Status() (Status, bool) {
	answer := make(chan Status, 1)
	select {
	case c.statusCh <- answer:
	case <-c.t.Dying():
		return Status{}, false
	case <-time.After(5 * time.Second):
		return Status{}, false
	}
	select {
	case status := <-answer:
		return status, true
	case <-c.t.Dying():
		return Status{}, false
	}
}

func (c *Component) statusHTTPHandler(gc *gin.Context) {
	status, ok := c.Status()
	if !ok {
		gc.JSON(http.StatusServiceUnavailable, gin.H{"message": "exporter is not running"})
		return
	}
	gc.JSON(http.StatusOK, status)
}
