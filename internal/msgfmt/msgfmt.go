package msgfmt

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"dashsync/internal/domain"
)

// FuncMap returns shared alert template helpers.
// Params: none.
// Returns: deterministic helper map used by all message templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtTime":   FormatTime,
		"fmtFloats": FormatFloats,
	}
}

// FormatTime renders one timestamp in the fixed operator-facing form.
// Params: template value expected as time.Time.
// Returns: formatted UTC timestamp string.
func FormatTime(value any) string {
	at, ok := value.(time.Time)
	if !ok {
		return ""
	}
	return at.UTC().Format("2006-01-02 15:04:05")
}

// FormatFloats renders sample values as a compact comma-separated list.
// Params: template value expected as []float64.
// Returns: joined list string.
func FormatFloats(value any) string {
	values, ok := value.([]float64)
	if !ok {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}

const titleTemplate = `{{.ConditionLabel}} alert: {{.Fired.RuleName}}`

const bodyTemplate = `Rule {{.Fired.RuleName}} fired on column {{.Fired.Column}}.
{{.Fired.Detail}}
Sample values: {{fmtFloats .Fired.Samples}}
Dataset rows: {{.Fired.RowCount}}
Triggered at {{fmtTime .Fired.TriggeredAt}}`

const emailBodyTemplate = `An alert rule on your dashboard fired.

Rule: {{.Fired.RuleName}} ({{.ConditionLabel}})
Column: {{.Fired.Column}}
{{.Fired.Detail}}
Sample values: {{fmtFloats .Fired.Samples}}
Dataset rows: {{.Fired.RowCount}}
Triggered at {{fmtTime .Fired.TriggeredAt}} UTC

This message was sent automatically by the dashboard sync service.`

var (
	titleTpl     = template.Must(template.New("title").Funcs(FuncMap()).Parse(titleTemplate))
	bodyTpl      = template.Must(template.New("body").Funcs(FuncMap()).Parse(bodyTemplate))
	emailBodyTpl = template.Must(template.New("email_body").Funcs(FuncMap()).Parse(emailBodyTemplate))
)

// templateInput carries one fired alert plus derived labels into templates.
// Params: fired alert and condition display label.
// Returns: template data payload.
type templateInput struct {
	Fired          domain.FiredAlert
	ConditionLabel string
}

// conditionLabel maps one condition kind to its display word.
// Params: condition kind.
// Returns: capitalized label.
func conditionLabel(kind domain.ConditionKind) string {
	switch kind {
	case domain.ConditionThreshold:
		return "Threshold"
	case domain.ConditionAnomaly:
		return "Anomaly"
	case domain.ConditionTrend:
		return "Trend"
	default:
		return "Alert"
	}
}

// render executes one template against a fired alert.
// Params: template and fired alert.
// Returns: rendered text, falling back to the detail line on execute failure.
func render(tpl *template.Template, fired domain.FiredAlert) string {
	var builder strings.Builder
	input := templateInput{Fired: fired, ConditionLabel: conditionLabel(fired.ConditionKind)}
	if err := tpl.Execute(&builder, input); err != nil {
		return fired.Detail
	}
	return builder.String()
}

// NotificationTitle renders the in-app notification title for one fired alert.
// Params: fired alert.
// Returns: title line.
func NotificationTitle(fired domain.FiredAlert) string {
	return render(titleTpl, fired)
}

// NotificationBody renders the in-app notification message for one fired alert.
// Params: fired alert.
// Returns: multi-line message body.
func NotificationBody(fired domain.FiredAlert) string {
	return render(bodyTpl, fired)
}

// EmailSubject renders the outbound email subject for one fired alert.
// Params: fired alert.
// Returns: subject line.
func EmailSubject(fired domain.FiredAlert) string {
	return fmt.Sprintf("Dashboard Alert: %s", fired.RuleName)
}

// EmailMessage renders a complete RFC 5322 message for one fired alert.
// Params: sender address, recipient address, and fired alert.
// Returns: message bytes ready for SMTP DATA.
func EmailMessage(from, to string, fired domain.FiredAlert) []byte {
	var builder strings.Builder
	builder.WriteString("From: " + from + "\r\n")
	builder.WriteString("To: " + to + "\r\n")
	builder.WriteString("Subject: " + EmailSubject(fired) + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(strings.ReplaceAll(render(emailBodyTpl, fired), "\n", "\r\n"))
	builder.WriteString("\r\n")
	return []byte(builder.String())
}
