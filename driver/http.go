package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/charmbracelet/log"

	"github.com/flowcheck/flowcheck/coverage"
	"github.com/flowcheck/flowcheck/types"
)

// HTTPDriver talks to an assistant's E2E testing channel over REST.
//
// Protocol: POST /sessions opens a session; POST /sessions/{id}/messages
// submits a user turn and returns the events produced so far. When the
// assistant hits a custom action it pauses the turn and returns a
// pending_action instead of a complete stream; the driver resolves it
// through the session's stub table and POSTs the result to
// /sessions/{id}/actions/{call_id}, repeating until the turn completes.
type HTTPDriver struct {
	BaseURL string
	Client  *http.Client
	Log     *log.Logger
}

// NewHTTPDriver creates a driver for the assistant at baseURL.
func NewHTTPDriver(baseURL string, timeout time.Duration, logger *log.Logger) *HTTPDriver {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &HTTPDriver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		Log:     logger,
	}
}

type startSessionRequest struct {
	CaseID   string         `json:"case_id"`
	Fixtures map[string]any `json:"fixtures,omitempty"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type wireEvent struct {
	Kind           string         `json:"kind"`
	FlowID         string         `json:"flow_id,omitempty"`
	Pattern        string         `json:"pattern,omitempty"`
	CandidateFlows []string       `json:"candidate_flows,omitempty"`
	SlotName       string         `json:"slot_name,omitempty"`
	SlotValue      any            `json:"slot_value,omitempty"`
	Text           string         `json:"text,omitempty"`
	Response       string         `json:"response,omitempty"`
	Buttons        []types.Button `json:"buttons,omitempty"`
}

type wireStep struct {
	FlowID string `json:"flow_id"`
	Lines  string `json:"lines"`
}

type pendingAction struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
}

type turnResponse struct {
	Events         []wireEvent    `json:"events"`
	ExercisedSteps []wireStep     `json:"exercised_steps,omitempty"`
	PendingAction  *pendingAction `json:"pending_action,omitempty"`
}

type actionResultRequest struct {
	Stubbed   bool             `json:"stubbed"`
	Events    []map[string]any `json:"events,omitempty"`
	Responses []map[string]any `json:"responses,omitempty"`
}

type httpSession struct {
	driver    *HTTPDriver
	sessionID string
	spec      SessionSpec
}

// StartSession opens a new conversation session and applies the spec's
// fixtures.
func (d *HTTPDriver) StartSession(ctx context.Context, spec SessionSpec) (Session, error) {
	var resp startSessionResponse
	err := d.post(ctx, "/sessions", startSessionRequest{CaseID: spec.CaseID, Fixtures: spec.Fixtures}, &resp)
	if err != nil {
		return nil, fmt.Errorf("starting session for %q: %w", spec.CaseID, err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("assistant returned an empty session id for %q", spec.CaseID)
	}
	d.Log.Debug("Session started", "case", spec.CaseID, "session", resp.SessionID)
	return &httpSession{driver: d, sessionID: resp.SessionID, spec: spec}, nil
}

// SendMessage submits one user turn and loops over pending custom-action
// calls until the assistant reports the turn's event stream complete.
func (s *httpSession) SendMessage(ctx context.Context, text string) (*TurnOutcome, error) {
	var resp turnResponse
	err := s.driver.post(ctx, "/sessions/"+s.sessionID+"/messages", messageRequest{Text: text}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	outcome := &TurnOutcome{}
	if err := s.accumulate(outcome, &resp); err != nil {
		return nil, err
	}

	for resp.PendingAction != nil {
		pending := resp.PendingAction
		result := actionResultRequest{}
		if s.spec.Stubs != nil {
			if stub, ok := s.spec.Stubs.Resolve(s.spec.CaseID, pending.Name); ok {
				result = actionResultRequest{Stubbed: true, Events: stub.Events, Responses: stub.Responses}
			}
		}
		s.driver.Log.Debug("Resolving pending action",
			"case", s.spec.CaseID,
			"action", pending.Name,
			"stubbed", result.Stubbed)

		resp = turnResponse{}
		err := s.driver.post(ctx, "/sessions/"+s.sessionID+"/actions/"+pending.CallID, result, &resp)
		if err != nil {
			return nil, fmt.Errorf("resolving action %q: %w", pending.Name, err)
		}
		if err := s.accumulate(outcome, &resp); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// accumulate appends a response's events and exercised steps to the turn
// outcome. Sequence positions are assigned here, in arrival order, so they
// are monotonically increasing across the whole turn even when the stream
// arrives in several pending-action chunks.
func (s *httpSession) accumulate(outcome *TurnOutcome, resp *turnResponse) error {
	for _, we := range resp.Events {
		ev, err := decodeEvent(we)
		if err != nil {
			return err
		}
		ev.Position = len(outcome.Events)
		outcome.Events = append(outcome.Events, ev)
	}
	for _, ws := range resp.ExercisedSteps {
		lines, err := coverage.ParseLineRange(ws.Lines)
		if err != nil {
			return fmt.Errorf("exercised step for flow %q: %w", ws.FlowID, err)
		}
		outcome.ExercisedSteps = append(outcome.ExercisedSteps, ExercisedStep{FlowID: ws.FlowID, Lines: lines})
	}
	return nil
}

func decodeEvent(we wireEvent) (types.Event, error) {
	kind := types.EventKind(we.Kind)
	switch kind {
	case types.EventFlowStarted, types.EventFlowCompleted, types.EventFlowCancelled,
		types.EventSlotSet, types.EventBotUttered, types.EventPatternTriggered:
	default:
		return types.Event{}, fmt.Errorf("unknown event kind %q", we.Kind)
	}
	return types.Event{
		Kind:           kind,
		FlowID:         we.FlowID,
		Pattern:        we.Pattern,
		CandidateFlows: we.CandidateFlows,
		SlotName:       we.SlotName,
		SlotValue:      we.SlotValue,
		// Assistants in debug mode decorate utterances with ANSI colors.
		Text:         stripansi.Strip(we.Text),
		ResponseName: we.Response,
		Buttons:      we.Buttons,
	}, nil
}

func (s *httpSession) Close() error {
	req, err := http.NewRequest(http.MethodDelete, s.driver.BaseURL+"/sessions/"+s.sessionID, nil)
	if err != nil {
		return err
	}
	resp, err := s.driver.Client.Do(req)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (d *HTTPDriver) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("assistant returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
