package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/stretchr/testify/assert"
)

type countingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *countingLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *countingLogger) Errorf(format string, args ...interface{}) {}

func TestNotifierPoolDeliversAllBeforeStop(t *testing.T) {
	log := &countingLogger{}
	pool := service.NewNotifierPool(context.Background(), log)
	pool.Start(2)

	var tier []models.Recipient
	for i := 0; i < 10; i++ {
		tier = append(tier, models.Recipient{
			ID:           fmt.Sprintf("r-%d", i),
			Type:         models.SignerRecipientType,
			Name:         fmt.Sprintf("Signer %d", i),
			Email:        "signer@example.com",
			RoutingOrder: 1,
		})
	}
	pool.NotifyRecipients("env-1", tier)
	pool.Stop()

	assert.Len(t, log.infos, 10)
}

func TestNotifierPoolBuffersBeforeStart(t *testing.T) {
	log := &countingLogger{}
	pool := service.NewNotifierPool(context.Background(), log)

	// Enqueued before any worker exists: buffers, delivered once Start runs.
	pool.NotifyRecipients("env-1", []models.Recipient{{
		ID:           "r-1",
		Type:         models.SignerRecipientType,
		Name:         "Early Signer",
		Email:        "early@example.com",
		RoutingOrder: 1,
	}})
	pool.Start(1)
	pool.Stop()

	assert.Len(t, log.infos, 1)
}

func TestNotifierPoolStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	log := &countingLogger{}
	pool := service.NewNotifierPool(ctx, log)
	pool.Start(1)
	cancel()

	// With the context cancelled, enqueueing may drop but must not hang.
	pool.NotifyRecipients("env-1", []models.Recipient{{ID: "r-1"}, {ID: "r-2"}})
	pool.Stop()
}
