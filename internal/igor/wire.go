// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"context"
	"time"

	"github.com/hclerval/galvanic/internal/models"
)

// responseTypes are the executor verbs that resolve pending requests.
var responseTypes = []string{
	models.TypeBrowserLaunched,
	models.TypeBrowserNavigated,
	models.TypeBrowserClicked,
	models.TypeBrowserTyped,
	models.TypeBrowserSelected,
	models.TypeBrowserCaptured,
	models.TypeBrowserExtracted,
	models.TypeBrowserClosed,
	models.TypeBrowserError,
	models.TypeToolListed,
	models.TypeToolInvoked,
	models.TypeToolError,
}

// Attach installs the engine's handlers on the hub client: plan intake,
// executor response correlation, and the lightning control verbs.
func (e *Engine) Attach(c *Client) {
	c.On(models.TypePlanSubmit, e.HandleSubmit)
	for _, t := range responseTypes {
		c.On(t, e.HandleResponse)
	}

	c.On(models.TypeIgorStrike, func(msg *models.Message) {
		reason, _ := msg.Payload["reason"].(string)
		if reason == "" {
			reason = "requested by " + string(msg.Source)
		}
		e.lightning.Strike(reason)
		e.reply(msg, models.TypeIgorStruck, map[string]interface{}{
			"mode": string(e.lightning.Mode()),
		})
	})

	c.On(models.TypeIgorPowerdown, func(msg *models.Message) {
		e.lightning.PowerDown()
		e.reply(msg, models.TypeIgorPowereddown, map[string]interface{}{
			"mode": string(e.lightning.Mode()),
		})
	})

	c.On(models.TypeIgorThink, func(msg *models.Message) {
		prompt, _ := msg.Payload["prompt"].(string)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		response, err := e.lightning.Think(ctx, prompt)
		if err != nil {
			e.reply(msg, models.TypeError, map[string]interface{}{"error": err.Error()})
			return
		}
		e.reply(msg, models.TypeIgorThought, map[string]interface{}{"response": response})
	})

	c.On(models.TypeIgorLightningStatus, func(msg *models.Message) {
		e.reply(msg, models.TypeIgorLightningStatusResponse, map[string]interface{}{
			"status": e.lightning.Status(),
		})
	})
}
