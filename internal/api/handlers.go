package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arutha/lexhost/internal/startup"
)

// queryRequest is the body of POST /bridge/query.
type queryRequest struct {
	DB    string `json:"db"`
	Query string `json:"query"`
}

// assetRequest is the body of POST /bridge/asset.
type assetRequest struct {
	Path string `json:"path"`
}

// handleBridgeQuery runs a query and returns the bridge's serialized output
// verbatim. Query failures are part of that output, so the status is 200.
func (s *Server) handleBridgeQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	writeRawJSON(w, http.StatusOK, s.executeQuery(r.Context(), req))
}

// handleBridgeAsset returns a bundled text resource as a JSON string, or
// null when it cannot be read.
func (s *Server) handleBridgeAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	writeRawJSON(w, http.StatusOK, string(s.readAsset(req)))
}

// handleProvisioningStatus returns the startup task's status.
func (s *Server) handleProvisioningStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.task.Status())
}

// handleProvisioningRetry re-runs a failed provisioning pass and returns the
// resulting status once it finishes.
func (s *Server) handleProvisioningRetry(w http.ResponseWriter, r *http.Request) {
	// A running pass is never cancelled, even if the caller goes away.
	st, err := s.task.Retry(context.WithoutCancel(r.Context()))
	if errors.Is(err, startup.ErrNotFailed) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "provisioning is "+string(st.State)+", not failed")
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// executeQuery is shared by the HTTP and WebSocket bridge.
func (s *Server) executeQuery(ctx context.Context, req queryRequest) string {
	return s.bridge.ExecuteQuery(ctx, req.DB, req.Query)
}

// readAsset is shared by the HTTP and WebSocket bridge. It returns the JSON
// encoding of the text, or null.
func (s *Server) readAsset(req assetRequest) json.RawMessage {
	text, ok := s.bridge.ReadAssetFile(req.Path)
	if !ok {
		return json.RawMessage("null")
	}
	body, err := marshalNoEscape(text)
	if err != nil {
		return json.RawMessage("null")
	}
	return body
}
