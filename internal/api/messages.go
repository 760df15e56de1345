package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/example/kiro-claude-bridge/internal/apierror"
	"github.com/example/kiro-claude-bridge/internal/config"
	"github.com/example/kiro-claude-bridge/internal/countcache"
	"github.com/example/kiro-claude-bridge/internal/credential"
	"github.com/example/kiro-claude-bridge/internal/eventstream"
	"github.com/example/kiro-claude-bridge/internal/kiroclient"
	"github.com/example/kiro-claude-bridge/internal/orchestrator"
	"github.com/example/kiro-claude-bridge/internal/translator"
)

const originAIEditor = "AI_EDITOR"

const maxBodyBytes = 16 << 20

// buildRequest closes over the inbound Anthropic body and the resolved
// model so that Orchestrator.Run can re-render the south-side identity
// and payload for whichever credential it attempts next, per spec §4.H.
func (s *Server) buildRequest(cfg *config.Config, anthropicBody []byte, modelID string) orchestrator.RequestBuilder {
	return func(cred *credential.Credential) (kiroclient.Identity, []byte) {
		identity := kiroclient.Identity{
			KiroVersion:       cfg.KiroVersion,
			SystemVersion:     cfg.SystemVersion,
			NodeVersion:       cfg.NodeVersion,
			DeviceFingerprint: cred.MachineID,
		}
		body := translator.BuildKiroRequest(anthropicBody, modelID, cred.ProfileARN, originAIEditor)
		return identity, body
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "failed to read request body", err))
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, apierror.New(apierror.KindBadRequest, "request body is not valid JSON", nil))
		return
	}

	modelID := translator.NormalizeModel(gjson.GetBytes(body, "model").String())
	stream := gjson.GetBytes(body, "stream").Bool()
	inputTokens := translator.EstimateTokens(body)

	kind := kiroclient.KindGenerateAssistantResponse
	if stream {
		kind = kiroclient.KindConverseStream
	}

	cfg := s.configStore.Get()
	attempt, err := s.orch.Run(r.Context(), cfg.Region, kind, s.buildRequest(cfg, body, modelID))
	if err != nil {
		writeError(w, err)
		return
	}

	if stream {
		s.streamMessage(w, r.Context(), attempt.Response, modelID, inputTokens)
		return
	}
	s.bufferMessage(w, r.Context(), attempt.Response, modelID, inputTokens)
}

func (s *Server) streamMessage(w http.ResponseWriter, ctx context.Context, resp *kiroclient.Response, modelID string, inputTokens int64) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	state := translator.NewState(modelID, inputTokens)
	writeFrame(w, flusher, state.Start())

	drainErr := drainEventStream(ctx, resp.Body, func(ev eventstream.Event) {
		for _, frame := range state.Feed(ev) {
			writeFrame(w, flusher, frame)
		}
	})
	if drainErr != nil {
		envelope, _ := apierror.NewEnvelope(drainErr)
		writeFrame(w, flusher, translator.ErrorEvent(envelope.Error.Type, envelope.Error.Message))
		return
	}

	for _, frame := range state.Finish() {
		writeFrame(w, flusher, frame)
	}
}

func (s *Server) bufferMessage(w http.ResponseWriter, ctx context.Context, resp *kiroclient.Response, modelID string, inputTokens int64) {
	builder := translator.NewResponseBuilder(modelID, inputTokens)
	drainErr := drainEventStream(ctx, resp.Body, func(ev eventstream.Event) {
		builder.Feed(ev.EventType(), ev.Payload)
	})
	if drainErr != nil {
		writeError(w, drainErr)
		return
	}
	writeJSON(w, http.StatusOK, builder.Build())
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame []byte) {
	_, _ = w.Write(frame)
	if flusher != nil {
		flusher.Flush()
	}
}

// drainEventStream reads resp's body to completion, feeding it through an
// Event Stream decoder and invoking onEvent for each frame it yields. It
// closes body unconditionally and returns the decoder's error, if any, or
// the context's error if the caller disconnected mid-stream, per spec
// §4.D's cancellation rule.
func drainEventStream(ctx context.Context, body io.ReadCloser, onEvent func(eventstream.Event)) error {
	defer body.Close()

	dec := eventstream.NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			events, feedErr := dec.Feed(buf[:n])
			for _, ev := range events {
				onEvent(ev)
			}
			if feedErr != nil {
				return feedErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

type countTokensResponse struct {
	InputTokens int64 `json:"input_tokens"`
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apierror.New(apierror.KindBadRequest, "failed to read request body", err))
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, apierror.New(apierror.KindBadRequest, "request body is not valid JSON", nil))
		return
	}

	key := countcache.Key(body)
	if cached, ok := s.countCache.Get(key); ok {
		writeJSON(w, http.StatusOK, countTokensResponse{InputTokens: cached})
		return
	}

	cfg := s.configStore.Get()
	count, delegated := delegateCountTokens(r.Context(), cfg, body)
	if !delegated {
		count = translator.EstimateTokens(body)
	}
	s.countCache.Put(key, count)
	writeJSON(w, http.StatusOK, countTokensResponse{InputTokens: count})
}

// delegateCountTokens forwards body to the configured external counting
// endpoint, per spec §6. It reports ok=false on any failure so the caller
// falls back to the local heuristic.
func delegateCountTokens(ctx context.Context, cfg *config.Config, body []byte) (int64, bool) {
	if cfg.CountTokensAPIURL == "" {
		return 0, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.CountTokensAPIURL, bytes.NewReader(body))
	if err != nil {
		return 0, false
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.CountTokensAuthType == "bearer" {
		req.Header.Set("Authorization", "Bearer "+cfg.CountTokensAPIKey)
	} else {
		req.Header.Set("x-api-key", cfg.CountTokensAPIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var parsed countTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, false
	}
	return parsed.InputTokens, true
}
