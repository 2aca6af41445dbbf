// File: api/schemas/wire.go
package schemas

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// wireJSON is the codec used for every message crossing a context boundary.
var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedMessage is returned when a wire message cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// envelope is the on-the-wire shape of a Request.
type envelope struct {
	Action Action     `json:"action"`
	TabID  int        `json:"tabId,omitempty"`
	Data   *BugReport `json:"data,omitempty"`
}

// EncodeRequest serializes a request into its wire envelope.
func EncodeRequest(r Request) ([]byte, error) {
	env := envelope{Action: r.Action()}
	switch req := r.(type) {
	case GetNetworkLogs:
		env.TabID = req.TabID
	case ClearNetworkLogs:
		env.TabID = req.TabID
	case SaveReport:
		env.Data = req.Report
	}
	b, err := wireJSON.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", r.Action(), err)
	}
	return b, nil
}

// DecodeRequest parses a wire envelope. The action is read first and selects
// the concrete request kind; unrecognized actions decode to Unknown.
func DecodeRequest(b []byte) (Request, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}
	action := gjson.GetBytes(b, "action")
	if action.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedMessage)
	}

	switch Action(action.Str) {
	case ActionGenerateBugReport:
		return GenerateReport{}, nil
	case ActionGenerateReport:
		return GenerateReport{Legacy: true}, nil
	case ActionGetConsoleLogs:
		return GetConsoleLogs{}, nil
	case ActionGetNetworkLogs:
		return GetNetworkLogs{TabID: int(gjson.GetBytes(b, "tabId").Int())}, nil
	case ActionClearNetworkLogs:
		return ClearNetworkLogs{TabID: int(gjson.GetBytes(b, "tabId").Int())}, nil
	case ActionSaveReport:
		data := gjson.GetBytes(b, "data")
		if !data.IsObject() {
			return nil, fmt.Errorf("%w: saveReport without data", ErrMalformedMessage)
		}
		var report BugReport
		if err := wireJSON.UnmarshalFromString(data.Raw, &report); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return SaveReport{Report: &report}, nil
	default:
		return Unknown{Name: action.Str}, nil
	}
}

// EncodeResponse serializes a response.
func EncodeResponse(r Response) ([]byte, error) {
	b, err := wireJSON.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return b, nil
}

// DecodeResponse parses a serialized response.
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := wireJSON.Unmarshal(b, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return r, nil
}
