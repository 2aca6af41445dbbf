// File: api/schemas/messages.go
package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action names a message kind on the wire.
type Action string

const (
	ActionGenerateBugReport Action = "generateBugReport"
	// ActionGenerateReport is the older spelling, still answered by the page monitor.
	ActionGenerateReport   Action = "generateReport"
	ActionGetConsoleLogs   Action = "getConsoleLogs"
	ActionGetNetworkLogs   Action = "getNetworkLogs"
	ActionClearNetworkLogs Action = "clearNetworkLogs"
	ActionSaveReport       Action = "saveReport"
)

// Request is the closed set of messages exchanged between contexts. Handlers
// switch over the concrete types and treat anything unmatched as not handled.
type Request interface {
	Action() Action
	isRequest()
}

// GenerateReport asks a page monitor for its page data.
type GenerateReport struct {
	Legacy bool
}

// GetConsoleLogs asks a page monitor for its buffered console entries.
type GetConsoleLogs struct{}

// GetNetworkLogs asks the tracker for the requests seen in a tab.
type GetNetworkLogs struct {
	TabID int
}

// ClearNetworkLogs asks the tracker to discard a tab's requests.
type ClearNetworkLogs struct {
	TabID int
}

// SaveReport asks the tracker to persist a report as the last one generated.
type SaveReport struct {
	Report *BugReport
}

// Unknown carries an action no component understands.
type Unknown struct {
	Name string
}

func (r GenerateReport) Action() Action {
	if r.Legacy {
		return ActionGenerateReport
	}
	return ActionGenerateBugReport
}
func (GetConsoleLogs) Action() Action   { return ActionGetConsoleLogs }
func (GetNetworkLogs) Action() Action   { return ActionGetNetworkLogs }
func (ClearNetworkLogs) Action() Action { return ActionClearNetworkLogs }
func (SaveReport) Action() Action       { return ActionSaveReport }
func (r Unknown) Action() Action        { return Action(r.Name) }

func (GenerateReport) isRequest()   {}
func (GetConsoleLogs) isRequest()   {}
func (GetNetworkLogs) isRequest()   {}
func (ClearNetworkLogs) isRequest() {}
func (SaveReport) isRequest()       {}
func (Unknown) isRequest()          {}

// Response is the reply to any Request. Logs holds either console or network
// entries depending on the request; use the typed accessors to read it.
type Response struct {
	Success bool            `json:"success"`
	Data    *PageData       `json:"data,omitempty"`
	Logs    json.RawMessage `json:"logs,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK is a bare success response.
func OK() Response {
	return Response{Success: true}
}

// Failure wraps err into a structured failure response.
func Failure(err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{Success: false, Error: msg}
}

// PageDataResponse answers a GenerateReport.
func PageDataResponse(d PageData) Response {
	return Response{Success: true, Data: &d}
}

// ConsoleLogsResponse answers a GetConsoleLogs.
func ConsoleLogsResponse(logs []LogEntry) (Response, error) {
	if logs == nil {
		logs = []LogEntry{}
	}
	raw, err := wireJSON.Marshal(logs)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode console logs: %w", err)
	}
	return Response{Success: true, Logs: raw}, nil
}

// NetworkLogsResponse answers a GetNetworkLogs.
func NetworkLogsResponse(logs []NetworkEntry) (Response, error) {
	if logs == nil {
		logs = []NetworkEntry{}
	}
	raw, err := wireJSON.Marshal(logs)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode network logs: %w", err)
	}
	return Response{Success: true, Logs: raw}, nil
}

// Err converts a failure response into an error. It returns nil on success.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(r.Error)
}

// ConsoleLogs decodes the logs payload as console entries.
func (r Response) ConsoleLogs() ([]LogEntry, error) {
	logs := []LogEntry{}
	if len(r.Logs) == 0 {
		return logs, nil
	}
	if err := wireJSON.Unmarshal(r.Logs, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode console logs: %w", err)
	}
	return logs, nil
}

// NetworkLogs decodes the logs payload as network entries.
func (r Response) NetworkLogs() ([]NetworkEntry, error) {
	logs := []NetworkEntry{}
	if len(r.Logs) == 0 {
		return logs, nil
	}
	if err := wireJSON.Unmarshal(r.Logs, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode network logs: %w", err)
	}
	return logs, nil
}
