// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

// Control types handled inline by the bridge router; never routed to peers.
const (
	TypeComponentRegister = "component.register"
	TypeHeartbeat         = "heartbeat"
	TypeVersionAnnounce   = "version.announce"
	TypeError             = "error"

	TypeDoctorSpawn  = "doctor.spawn"
	TypeDoctorReady  = "doctor.ready"
	TypeDoctorKill   = "doctor.kill"
	TypeDoctorStatus = "doctor.status"
	TypeDoctorList   = "doctor.list"
	TypeDoctorDied   = "doctor.died"

	TypeReportSubmit     = "report.submit"
	TypeScreenshotSubmit = "screenshot.submit"
)

// Plan lifecycle types owned by the worker face.
const (
	TypePlanSubmit    = "plan.submit"
	TypePlanAccepted  = "plan.accepted"
	TypePlanRejected  = "plan.rejected"
	TypePlanCompleted = "plan.completed"

	TypeStepStarted   = "step.started"
	TypeStepCompleted = "step.completed"
	TypeStepFailed    = "step.failed"
	TypeStepRetrying  = "step.retrying"
)

// Browser request/response pairs exchanged with executors. Requests carry
// the verb; responses carry the past-tense form or browser.error.
const (
	TypeBrowserLaunch     = "browser.launch"
	TypeBrowserLaunched   = "browser.launched"
	TypeBrowserNavigate   = "browser.navigate"
	TypeBrowserNavigated  = "browser.navigated"
	TypeBrowserClick      = "browser.click"
	TypeBrowserClicked    = "browser.clicked"
	TypeBrowserType       = "browser.type"
	TypeBrowserTyped      = "browser.typed"
	TypeBrowserSelect     = "browser.select"
	TypeBrowserSelected   = "browser.selected"
	TypeBrowserScreenshot = "browser.screenshot"
	TypeBrowserCaptured   = "browser.captured"
	TypeBrowserExtract    = "browser.extract"
	TypeBrowserExtracted  = "browser.extracted"
	TypeBrowserClose      = "browser.close"
	TypeBrowserClosed     = "browser.closed"
	TypeBrowserError      = "browser.error"
)

// Dynamic tool types for the executor's helper-tool catalog.
const (
	TypeToolList    = "tool.list"
	TypeToolListed  = "tool.listed"
	TypeToolInvoke  = "tool.invoke"
	TypeToolInvoked = "tool.invoked"
	TypeToolError   = "tool.error"
	TypeToolInject  = "tool.inject"
)

// Worker-face supervision and escalation types.
const (
	TypeIgorSpawn       = "igor.spawn"
	TypeIgorSpawned     = "igor.spawned"
	TypeIgorSpawnFailed = "igor.spawn.failed"
	TypeIgorExited      = "igor.exited"

	TypeIgorStrike      = "igor.strike"
	TypeIgorStruck      = "igor.struck"
	TypeIgorPowerdown   = "igor.powerdown"
	TypeIgorPowereddown = "igor.powereddown"
	TypeIgorThink       = "igor.think"
	TypeIgorThought     = "igor.thought"

	TypeIgorLightning               = "igor.lightning"
	TypeIgorLightningStatus         = "igor.lightning.status"
	TypeIgorLightningStatusResponse = "igor.lightning.status.response"

	TypeWorkerExited = "worker.exited"
)

// inlineTypes is the set the router consumes itself (C7 step 8).
var inlineTypes = map[string]bool{
	TypeComponentRegister: true,
	TypeHeartbeat:         true,
	TypeDoctorSpawn:       true,
	TypeDoctorReady:       true,
	TypeDoctorKill:        true,
	TypeDoctorStatus:      true,
	TypeDoctorList:        true,
	TypeReportSubmit:      true,
	TypeScreenshotSubmit:  true,
}

// IsInlineType reports whether the bridge handles this type itself instead
// of routing it.
func IsInlineType(msgType string) bool {
	return inlineTypes[msgType]
}
