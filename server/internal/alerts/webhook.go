package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gateload/gateload/pkg/types"
)

const resolvedColor = "2EB886"

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body, _ = json.Marshal(map[string]interface{}{"alert": a})
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "checkpoint", a.CheckpointID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "checkpoint", a.CheckpointID, "state", a.State)
	}
}

// fact is one labelled value shown on a chat card.
type fact struct {
	name  string
	value string
}

// cardFacts lists the checkpoint state behind a, in display order.
func cardFacts(a *Alert) []fact {
	out := []fact{
		{"Checkpoint", a.CheckpointID},
		{"Level", a.Level.Icon() + " " + string(a.Level)},
		{"Utilization", strconv.FormatFloat(a.Utilization, 'f', 2, 64)},
		{"Minute", a.Minute.Format("2006-01-02 15:04")},
		{"Rule", a.RuleName},
	}
	if a.Level == "" {
		out[1].value = "-"
	}
	return out
}

// headline is the one-line summary of a for chat targets.
func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("[RESOLVED] %s back to %s: %s", a.CheckpointID, levelOrDash(a.Level), a.RuleName)
	}
	return fmt.Sprintf("%s %s %s: %s", severityLabel(a.Severity), a.CheckpointID, levelOrDash(a.Level), a.Message)
}

func slackPayload(a *Alert) []byte {
	fields := make([]map[string]interface{}, 0, 5)
	for _, f := range cardFacts(a) {
		fields = append(fields, map[string]interface{}{"title": f.name, "value": f.value, "short": true})
	}
	ts := a.FiredAt
	if a.ResolvedAt != nil {
		ts = *a.ResolvedAt
	}
	body, _ := json.Marshal(map[string]interface{}{
		"text": headline(a),
		"attachments": []map[string]interface{}{{
			"color":  "#" + cardColor(a),
			"fields": fields,
			"footer": "gateload",
			"ts":     ts.Unix(),
		}},
	})
	return body
}

func teamsPayload(a *Alert) []byte {
	facts := make([]map[string]string, 0, 5)
	for _, f := range cardFacts(a) {
		facts = append(facts, map[string]string{"name": f.name, "value": f.value})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": cardColor(a),
		"summary":    headline(a),
		"title":      fmt.Sprintf("Checkpoint %s: %s (%s)", a.CheckpointID, a.RuleName, a.State),
		"sections": []map[string]interface{}{{
			"activityTitle": a.Message,
			"facts":         facts,
		}},
	})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func levelOrDash(l types.Level) string {
	if l == "" {
		return "-"
	}
	return string(l)
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// cardColor follows the checkpoint level; resolved alerts are always green.
func cardColor(a *Alert) string {
	if a.State == "resolved" {
		return resolvedColor
	}
	switch a.Level {
	case types.LevelRed:
		return "E01E5A"
	case types.LevelYellow:
		return "ECB22E"
	case types.LevelGreen:
		return resolvedColor
	default:
		return "36C5F0"
	}
}
