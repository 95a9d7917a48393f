package agent

import "strings"

// InputMessage is one turn of the conversation sent to the endpoint
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponsesRequest is the OpenAI responses API request body
type ResponsesRequest struct {
	Model string         `json:"model"`
	Input []InputMessage `json:"input"`
}

// NewSingleTurnRequest wraps a free-form prompt as a one-message conversation
func NewSingleTurnRequest(endpoint, prompt string) ResponsesRequest {
	return ResponsesRequest{
		Model: endpoint,
		Input: []InputMessage{{Role: "user", Content: prompt}},
	}
}

// Response is the subset of the responses API reply the bridge reads. Every
// level is optional: agents emit reasoning and tool-call items without
// content, and content items without text.
type Response struct {
	ID     string       `json:"id,omitempty"`
	Model  string       `json:"model,omitempty"`
	Status string       `json:"status,omitempty"`
	Output []OutputItem `json:"output,omitempty"`
}

// OutputItem is one entry of Response.Output
type OutputItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentItem `json:"content,omitempty"`
}

// ContentItem is one entry of OutputItem.Content
type ContentItem struct {
	Type string  `json:"type,omitempty"`
	Text *string `json:"text,omitempty"`
}

// ExtractText joins every non-empty text of output[].content[] with single
// spaces and trims the result. A nil response yields "".
func ExtractText(resp *Response) string {
	if resp == nil {
		return ""
	}

	var texts []string
	for _, output := range resp.Output {
		for _, item := range output.Content {
			if item.Text != nil && *item.Text != "" {
				texts = append(texts, *item.Text)
			}
		}
	}

	return strings.TrimSpace(strings.Join(texts, " "))
}
