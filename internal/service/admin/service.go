package admin

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/service/dispatcher"
	"github.com/merchpulse/storesync/internal/service/initializer"
	"github.com/merchpulse/storesync/pkg/logger"
)

// EntityProgress is the bootstrap progress for one entity type, counted
// in entities, not chunk jobs.
type EntityProgress struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Report is the admin status view: connection state, bootstrap progress
// and the live queue breakdown.
type Report struct {
	Connected       bool                                 `json:"connected"`
	InitOutstanding bool                                 `json:"init_outstanding"`
	Progress        map[model.EntityType]*EntityProgress `json:"progress"`
	Queue           []repository.StatusCount             `json:"queue"`
}

// Service is the store-owner control surface: connect validates and
// stores credentials and kicks off the bootstrap, status reports
// progress, disconnect tears everything down.
type Service struct {
	queue     repository.QueueRepository
	settings  repository.SettingsRepository
	bootstrap *initializer.Service
	clients   dispatcher.ClientFactory
	logger    *logger.Logger
}

func NewService(queue repository.QueueRepository, settings repository.SettingsRepository, bootstrap *initializer.Service, clients dispatcher.ClientFactory, log *logger.Logger) *Service {
	return &Service{
		queue:     queue,
		settings:  settings,
		bootstrap: bootstrap,
		clients:   clients,
		logger:    log.WithComponent("admin"),
	}
}

// Connect validates the credential pair against the remote service,
// stores it and queues the bulk bootstrap. An unauthorized error means
// the pair is wrong; anything else is transient.
func (s *Service) Connect(ctx context.Context, apiKey, apiSecret string) error {
	client := s.clients(&repository.Credentials{APIKey: apiKey, APISecret: apiSecret})
	if err := s.bootstrap.MaybeSyncData(ctx, client.Overview); err != nil {
		return err
	}

	if err := s.settings.SetCredentials(ctx, &repository.Credentials{APIKey: apiKey, APISecret: apiSecret}); err != nil {
		return err
	}

	s.logger.Info("store connected")
	return nil
}

// Status reports the current sync state. When connected but the
// bootstrap was never queued (credentials predate this deployment, or
// the queue was wiped), it re-queues the bootstrap first.
func (s *Service) Status(ctx context.Context) (*Report, error) {
	creds, err := s.settings.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Connected: creds != nil,
		Progress:  make(map[model.EntityType]*EntityProgress),
	}
	if creds == nil {
		return report, nil
	}

	queued, err := s.queue.ExistsAction(ctx, model.ActionInit)
	if err != nil {
		return nil, err
	}
	if !queued {
		client := s.clients(creds)
		if err := s.bootstrap.MaybeSyncData(ctx, client.Overview); err != nil {
			s.logger.Error(err, "bootstrap re-queue failed")
		}
	}

	initJobs, err := s.queue.ListByAction(ctx, model.ActionInit)
	if err != nil {
		return nil, err
	}
	for _, job := range initJobs {
		list, err := job.IDList()
		if err != nil {
			s.logger.Error(err, "unreadable bootstrap chunk", "job_id", job.ID)
			continue
		}

		progress := report.Progress[job.EntityType]
		if progress == nil {
			progress = &EntityProgress{}
			report.Progress[job.EntityType] = progress
		}
		progress.Total += len(list.IDs)
		switch job.Status {
		case model.JobStatusSuccess:
			progress.Synced += len(list.IDs)
		case model.JobStatusFailure:
			progress.Failed += len(list.IDs)
		default:
			report.InitOutstanding = true
		}
	}

	report.Queue, err = s.queue.CountsByEntityAndStatus(ctx)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Disconnect removes the remote copy of the store's data, wipes the
// local queue and forgets the credentials. Safe to call when already
// disconnected; the remote clear is best effort so a dead remote cannot
// hold the store hostage.
func (s *Service) Disconnect(ctx context.Context) error {
	creds, err := s.settings.Credentials(ctx)
	if err != nil {
		return err
	}
	if creds != nil {
		if err := s.clients(creds).Clear(ctx); err != nil {
			s.logger.Error(err, "remote clear failed, continuing disconnect")
		}
	}

	if err := s.queue.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.settings.DeleteCredentials(ctx); err != nil {
		return err
	}

	s.logger.Info("store disconnected")
	return nil
}
