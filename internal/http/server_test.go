package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internal_http "github.com/MasumNishat/signing-sub000/internal/http"
	"github.com/MasumNishat/signing-sub000/internal/log"
	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountID = "acct-e2e"

type workflowResponse struct {
	EnvelopeID string `json:"envelope_id"`
	Message    string `json:"message"`
	Reason     string `json:"reason"`
	Workflow   struct {
		RoutingType         string     `json:"routing_type"`
		Status              string     `json:"status"`
		CurrentRoutingOrder int        `json:"current_routing_order"`
		ScheduledResumeAt   *time.Time `json:"scheduled_resume_at"`
		PauseReason         string     `json:"pause_reason"`
		CancelReason        string     `json:"cancel_reason"`
	} `json:"workflow"`
}

type recipientsResponse struct {
	EnvelopeID          string `json:"envelope_id"`
	CurrentRoutingOrder int    `json:"current_routing_order"`
	Current             []struct {
		RecipientID  string `json:"recipient_id"`
		RoutingOrder int    `json:"routing_order"`
		Status       string `json:"status"`
	} `json:"current_recipients"`
	Pending []struct {
		RecipientID  string `json:"recipient_id"`
		RoutingOrder int    `json:"routing_order"`
	} `json:"pending_recipients"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newServer() *httptest.Server {
	store := storage.NewMockStore()
	wfSvc := service.NewWorkflowService(store, log.GetLogger())
	envSvc := service.NewEnvelopeService(store, log.GetLogger())
	return httptest.NewServer(internal_http.NewRouter(wfSvc, envSvc))
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body string, out interface{}) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// createEnvelope provisions an envelope with one signer per routing order.
func createEnvelope(t *testing.T, srv *httptest.Server, orders ...int) models.Envelope {
	t.Helper()
	recipients := make([]map[string]interface{}, 0, len(orders))
	for i, order := range orders {
		recipients = append(recipients, map[string]interface{}{
			"recipient_type": "signer",
			"name":           fmt.Sprintf("Signer %d", i),
			"email":          "signer@example.com",
			"routing_order":  order,
		})
	}
	payload, err := json.Marshal(map[string]interface{}{
		"name":       "e2e envelope",
		"recipients": recipients,
	})
	require.NoError(t, err)

	var e models.Envelope
	resp := postJSON(t, srv, "/accounts/"+accountID+"/envelopes", string(payload), &e)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, e.ID)
	return e
}

func wfPath(envelopeID, op string) string {
	return fmt.Sprintf("/accounts/%s/envelopes/%s/workflow/%s", accountID, envelopeID, op)
}

func TestWorkflowAPI(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		resp := getJSON(t, srv, "/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("StartAndInspectRecipients", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1, 1, 2)

		var started workflowResponse
		resp := postJSON(t, srv, wfPath(e.ID, "start"), `{}`, &started)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, e.ID, started.EnvelopeID)
		assert.Equal(t, "running", started.Workflow.Status)
		assert.Equal(t, 1, started.Workflow.CurrentRoutingOrder)
		assert.Equal(t, "Workflow started", started.Message)

		var current recipientsResponse
		resp = getJSON(t, srv, wfPath(e.ID, "recipients/current"), &current)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, current.CurrentRoutingOrder)
		require.Len(t, current.Current, 2)
		for _, r := range current.Current {
			assert.Equal(t, 1, r.RoutingOrder)
			assert.Equal(t, "sent", r.Status)
		}

		var pending recipientsResponse
		resp = getJSON(t, srv, wfPath(e.ID, "recipients/pending"), &pending)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, pending.Pending, 1)
		assert.Equal(t, 2, pending.Pending[0].RoutingOrder)
	})

	t.Run("ScheduledStart", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1)

		future := time.Now().Add(48 * time.Hour).Format(time.RFC3339)
		var started workflowResponse
		body := fmt.Sprintf(`{"scheduled_sending": {"resume_date": %q}}`, future)
		resp := postJSON(t, srv, wfPath(e.ID, "start"), body, &started)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "not_started", started.Workflow.Status)
		assert.Equal(t, 0, started.Workflow.CurrentRoutingOrder)
		assert.NotNil(t, started.Workflow.ScheduledResumeAt)
		assert.Equal(t, "Workflow start scheduled", started.Message)
	})

	t.Run("PastScheduleIs400", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1)

		past := time.Now().Add(-time.Hour).Format(time.RFC3339)
		var errResp errorResponse
		body := fmt.Sprintf(`{"scheduled_sending": {"resume_date": %q}}`, past)
		resp := postJSON(t, srv, wfPath(e.ID, "start"), body, &errResp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, errResp.Success)
		assert.Contains(t, errResp.Message, "resume_date")

		// No state mutation happened
		var status workflowResponse
		resp = getJSON(t, srv, wfPath(e.ID, "status"), &status)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "not_started", status.Workflow.Status)
		assert.Nil(t, status.Workflow.ScheduledResumeAt)
	})

	t.Run("PauseCancelResume", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1, 2)

		resp := postJSON(t, srv, wfPath(e.ID, "start"), `{}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var paused workflowResponse
		resp = postJSON(t, srv, wfPath(e.ID, "pause"), `{"reason": "on hold"}`, &paused)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "paused", paused.Workflow.Status)
		assert.Equal(t, "on hold", paused.Workflow.PauseReason)

		var cancelled workflowResponse
		resp = postJSON(t, srv, wfPath(e.ID, "cancel"), `{}`, &cancelled)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "cancelled", cancelled.Workflow.Status)
		assert.Equal(t, "Workflow canceled by sender", cancelled.Reason)
		assert.Equal(t, "Workflow canceled by sender", cancelled.Workflow.CancelReason)

		var errResp errorResponse
		resp = postJSON(t, srv, wfPath(e.ID, "resume"), ``, &errResp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, errResp.Success)
		assert.Contains(t, errResp.Message, "cancelled")
	})

	t.Run("StatusForUninitializedWorkflow", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1)

		var status workflowResponse
		resp := getJSON(t, srv, wfPath(e.ID, "status"), &status)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "not_started", status.Workflow.Status)
		assert.Equal(t, "sequential", status.Workflow.RoutingType)
	})

	t.Run("UnknownEnvelopeIs404", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()

		var errResp errorResponse
		resp := getJSON(t, srv, wfPath("2ffca363-90ef-4c39-acd9-7bebf1056408", "status"), &errResp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.False(t, errResp.Success)
	})

	t.Run("RecipientCompletionAdvancesWorkflow", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1, 2)

		resp := postJSON(t, srv, wfPath(e.ID, "start"), `{}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var envelope models.Envelope
		resp = getJSON(t, srv, fmt.Sprintf("/accounts/%s/envelopes/%s", accountID, e.ID), &envelope)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, envelope.Recipients, 2)

		statusPath := fmt.Sprintf("/accounts/%s/envelopes/%s/recipients/%s/status", accountID, e.ID, envelope.Recipients[0].ID)
		req, err := http.NewRequest(http.MethodPut, srv.URL+statusPath, bytes.NewBufferString(`{"status": "signed"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		putResp, err := srv.Client().Do(req)
		require.NoError(t, err)
		putResp.Body.Close()
		assert.Equal(t, http.StatusOK, putResp.StatusCode)

		var status workflowResponse
		resp = getJSON(t, srv, wfPath(e.ID, "status"), &status)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "running", status.Workflow.Status)
		assert.Equal(t, 2, status.Workflow.CurrentRoutingOrder)
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		srv := newServer()
		defer srv.Close()
		e := createEnvelope(t, srv, 1)

		var errResp errorResponse
		resp := postJSON(t, srv, wfPath(e.ID, "start"), `{"routing_type":`, &errResp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, errResp.Success)
	})
}
