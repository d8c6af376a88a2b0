package storage_test

import (
	"testing"
	"time"

	internal_storage "github.com/MasumNishat/signing-sub000/internal/storage"
	"github.com/MasumNishat/signing-sub000/internal/testutil"
	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store, rolled back after the subtest
	newTxStore := func(t *testing.T) *internal_storage.PostgresStore {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore.(*internal_storage.PostgresStore)
	}

	newEnvelope := func(t *testing.T, store *internal_storage.PostgresStore) models.Envelope {
		e := models.Envelope{
			ID:        uuid.NewString(),
			AccountID: "acct-pg",
			Name:      "Store test envelope",
			Status:    models.DraftEnvelopeStatus,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, store.SaveEnvelope(e))
		return e
	}

	t.Run("SaveAndGetEnvelope", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)

		saved, err := store.GetEnvelope(e.ID)
		assert.NoError(t, err)
		assert.Equal(t, e.Name, saved.Name)
		assert.Equal(t, models.DraftEnvelopeStatus, saved.Status)
	})

	t.Run("GetNonExistingEnvelope", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetEnvelope(uuid.NewString())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateEnvelopeStatus", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)

		assert.NoError(t, store.UpdateEnvelopeStatus(e.ID, models.SentEnvelopeStatus))
		updated, err := store.GetEnvelope(e.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SentEnvelopeStatus, updated.Status)

		err = store.UpdateEnvelopeStatus(uuid.NewString(), models.SentEnvelopeStatus)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListEnvelopesScopedToAccount", func(t *testing.T) {
		store := newTxStore(t)
		newEnvelope(t, store)

		mine, err := store.ListEnvelopes("acct-pg")
		assert.NoError(t, err)
		assert.Len(t, mine, 1)

		others, err := store.ListEnvelopes("acct-other")
		assert.NoError(t, err)
		assert.Empty(t, others)
	})

	t.Run("RecipientsOrderedByTierThenInsertion", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)

		ids := make([]string, 3)
		for i, order := range []int{2, 1, 2} {
			r := models.Recipient{
				ID:           uuid.NewString(),
				EnvelopeID:   e.ID,
				Type:         models.SignerRecipientType,
				Name:         "Signer",
				Email:        "signer@example.com",
				RoutingOrder: order,
				Status:       models.CreatedRecipientStatus,
				CreatedAt:    time.Now(),
			}
			require.NoError(t, store.SaveRecipient(r))
			ids[i] = r.ID
		}

		recipients, err := store.ListRecipients(e.ID)
		assert.NoError(t, err)
		require.Len(t, recipients, 3)
		assert.Equal(t, ids[1], recipients[0].ID) // tier 1 first
		assert.Equal(t, ids[0], recipients[1].ID) // then tier 2 in insertion order
		assert.Equal(t, ids[2], recipients[2].ID)
	})

	t.Run("UpdateRecipientStatus", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)
		r := models.Recipient{
			ID:           uuid.NewString(),
			EnvelopeID:   e.ID,
			Type:         models.SignerRecipientType,
			Name:         "Signer",
			Email:        "signer@example.com",
			RoutingOrder: 1,
			Status:       models.CreatedRecipientStatus,
			CreatedAt:    time.Now(),
		}
		require.NoError(t, store.SaveRecipient(r))

		assert.NoError(t, store.UpdateRecipientStatus(e.ID, r.ID, models.SignedRecipientStatus))
		updated, err := store.GetRecipient(e.ID, r.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SignedRecipientStatus, updated.Status)
	})

	t.Run("WorkflowStateRoundTrip", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)

		resumeAt := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
		ws := models.WorkflowState{
			EnvelopeID:          e.ID,
			RoutingType:         models.SequentialRoutingType,
			RunState:            models.NotStartedRunState,
			CurrentRoutingOrder: 0,
			ScheduledResumeAt:   &resumeAt,
			CreatedAt:           time.Now(),
			UpdatedAt:           time.Now(),
		}
		require.NoError(t, store.SaveWorkflowState(ws))

		saved, err := store.GetWorkflowState(e.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.NotStartedRunState, saved.RunState)
		require.NotNil(t, saved.ScheduledResumeAt)
		assert.True(t, saved.ScheduledResumeAt.Equal(resumeAt))

		saved.RunState = models.RunningRunState
		saved.CurrentRoutingOrder = 1
		saved.ScheduledResumeAt = nil
		require.NoError(t, store.UpdateWorkflowState(saved))

		updated, err := store.GetWorkflowStateForUpdate(e.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.RunningRunState, updated.RunState)
		assert.Equal(t, 1, updated.CurrentRoutingOrder)
		assert.Nil(t, updated.ScheduledResumeAt)
	})

	t.Run("GetNonExistingWorkflowState", func(t *testing.T) {
		store := newTxStore(t)
		e := newEnvelope(t, store)
		_, err := store.GetWorkflowState(e.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListDueWorkflowStates", func(t *testing.T) {
		store := newTxStore(t)

		pastEnvelope := newEnvelope(t, store)
		futureEnvelope := newEnvelope(t, store)
		past := time.Now().Add(-time.Minute)
		future := time.Now().Add(time.Hour)

		require.NoError(t, store.SaveWorkflowState(models.WorkflowState{
			EnvelopeID: pastEnvelope.ID, RoutingType: models.SequentialRoutingType,
			RunState: models.NotStartedRunState, ScheduledResumeAt: &past,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
		require.NoError(t, store.SaveWorkflowState(models.WorkflowState{
			EnvelopeID: futureEnvelope.ID, RoutingType: models.SequentialRoutingType,
			RunState: models.NotStartedRunState, ScheduledResumeAt: &future,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))

		due, err := store.ListDueWorkflowStates(time.Now())
		assert.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, pastEnvelope.ID, due[0].EnvelopeID)
	})
}
