// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package doctor

import (
	"github.com/hclerval/galvanic/internal/bridge"
	"github.com/hclerval/galvanic/internal/models"
)

// Attach installs the doctor.* control verbs on the router. The same
// operations are mirrored by the /doctors HTTP endpoints.
func Attach(m *Manager, r *bridge.Router) {
	r.Inline(models.TypeDoctorSpawn, func(connID string, msg *models.Message) {
		specialization, _ := msg.Payload["specialization"].(string)
		config := map[string]string{}
		if raw, ok := msg.Payload["config"].(map[string]interface{}); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					config[k] = s
				}
			}
		}

		info, err := m.Spawn(specialization, config)
		if err != nil {
			r.Reply(connID, models.NewErrorMessage(msg.Source, err.Error()))
			return
		}
		reply := models.NewMessage("bridge", msg.Source, models.TypeDoctorStatus,
			map[string]interface{}{"doctor": info})
		reply.CorrelationID = msg.CorrelationID
		r.Reply(connID, reply)
	})

	r.Inline(models.TypeDoctorReady, func(_ string, msg *models.Message) {
		m.MarkReady(string(msg.Source))
	})

	r.Inline(models.TypeDoctorStatus, func(_ string, msg *models.Message) {
		status, _ := msg.Payload["status"].(string)
		completed, _ := models.NumberField(msg.Payload, "plansCompleted")
		failed, _ := models.NumberField(msg.Payload, "plansFailed")
		var igors []string
		if raw, ok := msg.Payload["igors"].([]interface{}); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					igors = append(igors, s)
				}
			}
		}
		m.UpdateStatus(string(msg.Source), Status(status), int(completed), int(failed), igors)
	})

	r.Inline(models.TypeDoctorKill, func(connID string, msg *models.Message) {
		id, _ := msg.Payload["id"].(string)
		reason, _ := msg.Payload["reason"].(string)
		if reason == "" {
			reason = "requested by " + string(msg.Source)
		}
		if err := m.Kill(id, reason); err != nil {
			r.Reply(connID, models.NewErrorMessage(msg.Source, err.Error()))
		}
	})

	r.Inline(models.TypeDoctorList, func(connID string, msg *models.Message) {
		reply := models.NewMessage("bridge", msg.Source, models.TypeDoctorList,
			map[string]interface{}{"doctors": m.List()})
		reply.CorrelationID = msg.CorrelationID
		r.Reply(connID, reply)
	})
}
