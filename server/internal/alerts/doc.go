// Package alerts implements the rule evaluation engine and webhook delivery
// for gateload alerting. Rules are evaluated against every appended history
// record; webhooks are delivered to Teams, Slack, or generic HTTP targets.
//
// Alerts are keyed by rule and checkpoint. A firing alert resolves on the
// first record of its checkpoint for which the condition no longer holds.
package alerts
