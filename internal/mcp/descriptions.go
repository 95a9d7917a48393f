package mcp

import (
	"bytes"
	"strings"
	"text/template"
)

const (
	healthDescription = "Check the health of the MCP server and its Databricks dependencies. " +
		"With deep=false only confirms the server responds. With deep=true validates the delegated " +
		"user token, workspace identity, agent configuration and agent reachability."

	currentUserDescription = "Get the workspace identity of the calling user (display_name, user_name, active). " +
		"When deployed as a Databricks App this is the end user making the request; when running " +
		"locally it is the developer's own Databricks identity."
)

// askTemplate renders the description of an ask tool. Descriptions are
// rendered once at startup from configuration.
var askTemplate = template.Must(template.New("ask").Parse(strings.TrimSpace(`
Ask the {{.Kind}} served by Databricks endpoint '{{.Endpoint}}' on behalf of the calling user.
{{- if .Description}}

{{.Description}}
{{- end}}

The prompt is sent as a single user message. Returns {"response": ...} with the reply text,
or {"error": ..., "message": ...} when the call fails. Requires user authorization (OBO)
when deployed as a Databricks App.
`)))

type askDescription struct {
	Kind        string
	Endpoint    string
	Description string
}

func renderAskDescription(kind, endpoint, description string) (string, error) {
	if endpoint == "" {
		endpoint = "<not configured>"
	}

	var buf bytes.Buffer
	err := askTemplate.Execute(&buf, askDescription{
		Kind:        kind,
		Endpoint:    endpoint,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
