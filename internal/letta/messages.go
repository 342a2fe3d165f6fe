package letta

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	mcperrors "letta-mcp-server/internal/errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type messagesAPI struct{ c *HTTPClient }

func (m *messagesAPI) Send(ctx context.Context, agentID ID, req SendMessageRequest) (*LettaResponse, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages")
	r.body = req
	var resp LettaResponse
	if err := m.c.do(ctx, r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream reads the server-sent event stream until the [DONE] marker
func (m *messagesAPI) Stream(ctx context.Context, agentID ID, req SendMessageRequest) ([]map[string]interface{}, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages/stream")
	r.body = req
	var raw rawResponse
	if err := m.c.do(ctx, r, &raw); err != nil {
		return nil, err
	}
	return parseEventStream(raw)
}

func (m *messagesAPI) SendAsync(ctx context.Context, agentID ID, req SendMessageRequest) (*Run, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages/async")
	r.body = req
	var run Run
	if err := m.c.do(ctx, r, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (m *messagesAPI) Cancel(ctx context.Context, agentID ID, runIDs []ID) (map[string]interface{}, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages/cancel")
	ids := make([]string, len(runIDs))
	for i, id := range runIDs {
		ids[i] = id.String()
	}
	r.body = map[string]interface{}{"run_ids": ids}
	var result map[string]interface{}
	err := m.c.do(ctx, r, &result)
	return result, err
}

func (m *messagesAPI) Preview(ctx context.Context, agentID ID, req SendMessageRequest) (map[string]interface{}, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages/preview-raw-payload")
	r.body = req
	var payload map[string]interface{}
	err := m.c.do(ctx, r, &payload)
	return payload, err
}

func (m *messagesAPI) Search(ctx context.Context, agentID ID, req MessageSearchRequest) ([]Message, error) {
	r := agentRequest(http.MethodPost, agentID, "/messages/search")
	r.body = req
	var messages []Message
	err := m.c.do(ctx, r, &messages)
	return messages, err
}

func (m *messagesAPI) Get(ctx context.Context, agentID, messageID ID) (*Message, error) {
	r := agentRequest(http.MethodGet, agentID, "/messages/"+escape(messageID.String()))
	r.resource, r.id = "message", messageID.String()
	var msg Message
	if err := m.c.do(ctx, r, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *messagesAPI) Reset(ctx context.Context, agentID ID) (*Agent, error) {
	var agent Agent
	if err := m.c.do(ctx, agentRequest(http.MethodPatch, agentID, "/reset-messages"), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (m *messagesAPI) Summarize(ctx context.Context, agentID ID, maxMessageLength int) error {
	r := agentRequest(http.MethodPost, agentID, "/summarize")
	if maxMessageLength > 0 {
		r.query = url.Values{"max_message_length": []string{strconv.Itoa(maxMessageLength)}}
	}
	return m.c.do(ctx, r, nil)
}

func parseEventStream(body []byte) ([]map[string]interface{}, error) {
	var chunks []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64<<10), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, mcperrors.NewBackendError("malformed stream chunk", err, nil)
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, mcperrors.NewBackendError("failed to read message stream", err, nil)
	}
	return chunks, nil
}
