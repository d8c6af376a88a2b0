package scheduler

import (
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/robfig/cron/v3"
)

// Scheduler is the timed trigger behind scheduled sending: the engine only
// records `scheduled_resume_at`, and this loop fires the actual start or
// resume once the time elapses.
type Scheduler struct {
	store  storage.Store
	svc    *service.WorkflowService
	logger service.Logger
	cron   *cron.Cron
	spec   string
	now    func() time.Time
}

func NewScheduler(store storage.Store, svc *service.WorkflowService, logger service.Logger, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 30s"
	}
	return &Scheduler{
		store:  store,
		svc:    svc,
		logger: logger,
		cron:   cron.New(),
		spec:   spec,
		now:    time.Now,
	}
}

// Start begins the polling loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Workflow scheduler started (%s)", s.spec)
	return nil
}

// Stop halts the loop, waiting for an in-flight tick.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Tick starts or resumes every workflow whose scheduled time has elapsed.
// Each envelope is handled independently; one failure does not block the
// rest.
func (s *Scheduler) Tick() {
	due, err := s.store.ListDueWorkflowStates(s.now())
	if err != nil {
		s.logger.Errorf("Failed to list due workflows: %v", err)
		return
	}
	for _, ws := range due {
		envelope, err := s.store.GetEnvelope(ws.EnvelopeID)
		if err != nil {
			s.logger.Errorf("Failed to load envelope %s for scheduled workflow: %v", ws.EnvelopeID, err)
			continue
		}
		switch ws.RunState {
		case models.NotStartedRunState:
			if _, err := s.svc.StartWorkflow(envelope.AccountID, ws.EnvelopeID, "", nil); err != nil {
				s.logger.Errorf("Scheduled start of envelope %s failed: %v", ws.EnvelopeID, err)
				continue
			}
			s.logger.Infof("Scheduled start fired for envelope %s", ws.EnvelopeID)
		case models.PausedRunState:
			if _, err := s.svc.ResumeWorkflow(envelope.AccountID, ws.EnvelopeID); err != nil {
				s.logger.Errorf("Scheduled resume of envelope %s failed: %v", ws.EnvelopeID, err)
				continue
			}
			s.logger.Infof("Scheduled resume fired for envelope %s", ws.EnvelopeID)
		}
	}
}
