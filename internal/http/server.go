package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MasumNishat/signing-sub000/internal/log"
	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

const defaultCancelReason = "Workflow canceled by sender"

// StartServer serves the workflow API over the given services. The caller
// owns service construction so the scheduler and the HTTP surface share one
// engine (and one notifier).
func StartServer(port string, wfSvc *service.WorkflowService, envSvc *service.EnvelopeService) error {
	logger := log.GetLogger()
	logger.Infof("Starting envelope workflow server on :%s", port)
	return http.ListenAndServe(":"+port, NewRouter(wfSvc, envSvc))
}

// NewRouter wires the workflow API under
// /accounts/{accountId}/envelopes/{envelopeId}/workflow plus the envelope
// CRUD surface it depends on.
func NewRouter(wfSvc *service.WorkflowService, envSvc *service.EnvelopeService) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/accounts/{accountId}").Subrouter()
	api.HandleFunc("/envelopes", CreateEnvelopeHandler(envSvc)).Methods(http.MethodPost)
	api.HandleFunc("/envelopes/{envelopeId}", GetEnvelopeHandler(envSvc)).Methods(http.MethodGet)
	api.HandleFunc("/envelopes/{envelopeId}/recipients", AddRecipientHandler(envSvc)).Methods(http.MethodPost)
	api.HandleFunc("/envelopes/{envelopeId}/recipients/{recipientId}/status", UpdateRecipientStatusHandler(wfSvc)).Methods(http.MethodPut)

	wf := api.PathPrefix("/envelopes/{envelopeId}/workflow").Subrouter()
	wf.HandleFunc("/start", StartWorkflowHandler(wfSvc)).Methods(http.MethodPost)
	wf.HandleFunc("/pause", PauseWorkflowHandler(wfSvc)).Methods(http.MethodPost)
	wf.HandleFunc("/resume", ResumeWorkflowHandler(wfSvc)).Methods(http.MethodPost)
	wf.HandleFunc("/cancel", CancelWorkflowHandler(wfSvc)).Methods(http.MethodPost)
	wf.HandleFunc("/status", WorkflowStatusHandler(wfSvc)).Methods(http.MethodGet)
	wf.HandleFunc("/recipients/current", CurrentRecipientsHandler(wfSvc)).Methods(http.MethodGet)
	wf.HandleFunc("/recipients/pending", PendingRecipientsHandler(wfSvc)).Methods(http.MethodGet)
	return r
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// workflowView is the client-facing shape of a workflow state.
type workflowView struct {
	RoutingType         models.RoutingType `json:"routing_type"`
	Status              models.RunState    `json:"status"`
	CurrentRoutingOrder int                `json:"current_routing_order"`
	ScheduledResumeAt   *time.Time         `json:"scheduled_resume_at,omitempty"`
	PauseReason         string             `json:"pause_reason,omitempty"`
	CancelReason        string             `json:"cancel_reason,omitempty"`
}

func toWorkflowView(ws models.WorkflowState) workflowView {
	return workflowView{
		RoutingType:         ws.RoutingType,
		Status:              ws.RunState,
		CurrentRoutingOrder: ws.CurrentRoutingOrder,
		ScheduledResumeAt:   ws.ScheduledResumeAt,
		PauseReason:         ws.PauseReason,
		CancelReason:        ws.CancelReason,
	}
}

type recipientView struct {
	RecipientID   string                 `json:"recipient_id"`
	RecipientType models.RecipientType   `json:"recipient_type"`
	Name          string                 `json:"name"`
	Email         string                 `json:"email"`
	RoutingOrder  int                    `json:"routing_order"`
	Status        models.RecipientStatus `json:"status"`
}

func toRecipientViews(recipients []models.Recipient) []recipientView {
	views := []recipientView{}
	for _, r := range recipients {
		views = append(views, recipientView{
			RecipientID:   r.ID,
			RecipientType: r.Type,
			Name:          r.Name,
			Email:         r.Email,
			RoutingOrder:  r.RoutingOrder,
			Status:        r.Status,
		})
	}
	return views
}

type scheduledSending struct {
	ResumeDate string `json:"resume_date"`
}

type startRequest struct {
	RoutingType      models.RoutingType `json:"routing_type"`
	ScheduledSending *scheduledSending  `json:"scheduled_sending"`
}

func StartWorkflowHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		var req startRequest
		if !decodeBody(w, r, &req) {
			return
		}
		var scheduledAt *time.Time
		if req.ScheduledSending != nil && req.ScheduledSending.ResumeDate != "" {
			t, err := time.Parse(time.RFC3339, req.ScheduledSending.ResumeDate)
			if err != nil {
				writeError(w, &service.ValidationError{Field: "resume_date", Reason: "must be an RFC3339 timestamp"})
				return
			}
			scheduledAt = &t
		}
		ws, err := svc.StartWorkflow(accountID, envelopeID, req.RoutingType, scheduledAt)
		if err != nil {
			writeError(w, err)
			return
		}
		message := "Workflow started"
		if ws.RunState == models.NotStartedRunState {
			message = "Workflow start scheduled"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id": envelopeID,
			"workflow":    toWorkflowView(ws),
			"message":     message,
		})
	}
}

type pauseRequest struct {
	ResumeDate string `json:"resume_date"`
	Reason     string `json:"reason"`
}

func PauseWorkflowHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		var req pauseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		var resumeAt *time.Time
		if req.ResumeDate != "" {
			t, err := time.Parse(time.RFC3339, req.ResumeDate)
			if err != nil {
				writeError(w, &service.ValidationError{Field: "resume_date", Reason: "must be an RFC3339 timestamp"})
				return
			}
			resumeAt = &t
		}
		ws, err := svc.PauseWorkflow(accountID, envelopeID, req.Reason, resumeAt)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id": envelopeID,
			"workflow":    toWorkflowView(ws),
		})
	}
}

func ResumeWorkflowHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		ws, err := svc.ResumeWorkflow(accountID, envelopeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id": envelopeID,
			"workflow":    toWorkflowView(ws),
		})
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func CancelWorkflowHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		var req cancelRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = defaultCancelReason
		}
		ws, err := svc.CancelWorkflow(accountID, envelopeID, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id": envelopeID,
			"workflow":    toWorkflowView(ws),
			"reason":      req.Reason,
		})
	}
}

func WorkflowStatusHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		ws, err := svc.GetWorkflowStatus(accountID, envelopeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id": envelopeID,
			"workflow":    toWorkflowView(ws),
		})
	}
}

func CurrentRecipientsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		order, recipients, err := svc.GetCurrentActiveRecipients(accountID, envelopeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id":           envelopeID,
			"current_routing_order": order,
			"current_recipients":    toRecipientViews(recipients),
		})
	}
}

func PendingRecipientsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		order, recipients, err := svc.GetPendingRecipients(accountID, envelopeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"envelope_id":           envelopeID,
			"current_routing_order": order,
			"pending_recipients":    toRecipientViews(recipients),
		})
	}
}

type createEnvelopeRequest struct {
	Name       string                   `json:"name"`
	Recipients []service.RecipientInput `json:"recipients"`
}

func CreateEnvelopeHandler(svc *service.EnvelopeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := mux.Vars(r)["accountId"]
		var req createEnvelopeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		e, err := svc.CreateEnvelope(accountID, req.Name, req.Recipients)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func GetEnvelopeHandler(svc *service.EnvelopeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		e, err := svc.GetEnvelope(accountID, envelopeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func AddRecipientHandler(svc *service.EnvelopeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		var req service.RecipientInput
		if !decodeBody(w, r, &req) {
			return
		}
		recipient, err := svc.AddRecipient(accountID, envelopeID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, recipient)
	}
}

type recipientStatusRequest struct {
	Status models.RecipientStatus `json:"status"`
}

// UpdateRecipientStatusHandler is how the signing surface reports a finished
// recipient; a drained tier advances the workflow.
func UpdateRecipientStatusHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, envelopeID := pathIDs(r)
		recipientID := mux.Vars(r)["recipientId"]
		var req recipientStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}
		recipient, err := svc.CompleteRecipient(accountID, envelopeID, recipientID, req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recipient)
	}
}

func pathIDs(r *http.Request) (accountID, envelopeID string) {
	vars := mux.Vars(r)
	return vars["accountId"], vars["envelopeId"]
}

// decodeBody parses a JSON body, tolerating an empty one. Returns false
// after writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, &service.ValidationError{Field: "body", Reason: "malformed JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the service error taxonomy onto HTTP statuses: invalid
// transitions and validation failures are 400, missing records 404,
// everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var transitionErr *service.InvalidTransitionError
	var validationErr *service.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &transitionErr), errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": err.Error(),
	})
}
