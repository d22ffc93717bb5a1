package relayer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	internalerrors "github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/httputil"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/storage"
)

func (s *Service) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		rej := reject(http.StatusBadRequest, internalerrors.CodeBadRequest, "invalid_body", MsgInvalidBody, err)
		s.recordOutcome(rej.Outcome)
		httputil.WriteJSON(w, rej.HTTPStatus, rej.Body())
		return
	}

	resp, rej := s.Relay(r.Context(), body)
	if rej != nil {
		httputil.WriteJSON(w, rej.HTTPStatus, rej.Body())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Service) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.GetRelay(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(internalerrors.CodeNotFound), "relay request not found", nil)
		return
	}
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Error("Failed to load relay record")
		httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(internalerrors.CodeInternal), "failed to load relay request", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Service) handleListRequests(w http.ResponseWriter, r *http.Request) {
	account, err := entityid.Parse(mux.Vars(r)["accountId"])
	if err != nil {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, string(internalerrors.CodeInvalidParameters), err.Error(), nil)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > storage.DefaultListLimit {
			httputil.WriteErrorResponse(w, r, http.StatusBadRequest, string(internalerrors.CodeInvalidParameters), "limit must be between 1 and 100", nil)
			return
		}
	}

	records, err := s.store.ListRelays(r.Context(), account.String(), limit)
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Error("Failed to list relay records")
		httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(internalerrors.CodeInternal), "failed to list relay requests", nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": records})
}

type modeBody struct {
	Mode     mode.Mode `json:"mode"`
	Failures int       `json:"consecutiveFailures"`
}

func (s *Service) handleGetMode(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, modeBody{
		Mode:     s.tracker.Current(r.Context()),
		Failures: s.tracker.Failures(),
	})
}

func (s *Service) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	target, err := mode.Parse(req.Mode)
	if err != nil {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, string(internalerrors.CodeInvalidParameters), err.Error(), nil)
		return
	}

	if target == mode.Live {
		err = s.tracker.Restore(r.Context())
	} else {
		err = s.tracker.Degrade(r.Context())
	}
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Error("Failed to change ledger mode")
		httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, string(internalerrors.CodeInternal), "failed to change ledger mode", nil)
		return
	}
	s.Logger().LogSecurityEvent(r.Context(), "ledger_mode_changed", map[string]interface{}{"mode": target.String()})
	s.handleGetMode(w, r)
}
