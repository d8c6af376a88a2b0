package service

import (
	"context"
	"runtime"
	"sync"

	"github.com/MasumNishat/signing-sub000/pkg/models"
)

// Notifier delivers "it is your turn to act" notifications for a routing
// tier. The real delivery channel (email, embedded signing) lives behind
// this interface; the engine only hands over the active recipients.
type Notifier interface {
	NotifyRecipients(envelopeID string, recipients []models.Recipient)
}

type notification struct {
	envelopeID string
	recipient  models.Recipient
}

// NotifierPool fans tier notifications out to a fixed set of workers so a
// wide parallel tier does not block the transition that activated it.
type NotifierPool struct {
	logger   Logger
	noteChan chan notification
	wg       sync.WaitGroup
	ctx      context.Context
}

func NewNotifierPool(ctx context.Context, logger Logger) *NotifierPool {
	// The channel exists from construction so a notification enqueued
	// before Start buffers instead of blocking on a nil channel.
	return &NotifierPool{
		logger:   logger,
		noteChan: make(chan notification, runtime.NumCPU()),
		ctx:      ctx,
	}
}

// Start begins the pool with the specified number of workers.
func (np *NotifierPool) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	for i := 0; i < workers; i++ {
		np.wg.Add(1)
		go np.worker()
	}
}

// Stop drains outstanding notifications and waits for the workers.
func (np *NotifierPool) Stop() {
	close(np.noteChan)
	np.wg.Wait()
}

func (np *NotifierPool) NotifyRecipients(envelopeID string, recipients []models.Recipient) {
	for _, r := range recipients {
		select {
		case np.noteChan <- notification{envelopeID: envelopeID, recipient: r}:
		case <-np.ctx.Done():
			np.logger.Errorf("Dropping notification for recipient %s on envelope %s: %v",
				r.ID, envelopeID, np.ctx.Err())
			return
		}
	}
}

func (np *NotifierPool) worker() {
	defer np.wg.Done()
	for n := range np.noteChan {
		// Delivery stub: the hosted product sends email here.
		np.logger.Infof("Notifying %s recipient '%s' <%s> on envelope %s (routing order %d)",
			n.recipient.Type, n.recipient.Name, n.recipient.Email, n.envelopeID, n.recipient.RoutingOrder)
	}
}

// nopNotifier is used when no notifier is configured.
type nopNotifier struct{}

func (nopNotifier) NotifyRecipients(string, []models.Recipient) {}
