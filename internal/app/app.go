// Package app wires storage, transport and services from a Config.
// Every binary builds its dependencies through New.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/repository/memory"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type App struct {
	Config config.Config
	// DB is nil with STORAGE_DRIVER=memory.
	DB *sql.DB
	// Memory is set only with STORAGE_DRIVER=memory.
	Memory *memory.Store

	Recipients repository.RecipientRepositoryInterface
	Campaigns  *service.CampaignService
	Recorder   *service.EventRecorder
	Worker     *service.Worker
}

type stores struct {
	campaigns   repository.CampaignRepositoryInterface
	customers   repository.CustomerRepositoryInterface
	subscribers repository.SubscriberRepositoryInterface
	recipients  repository.RecipientRepositoryInterface
	events      repository.EventRepositoryInterface
	templates   repository.TemplateRepositoryInterface
	activity    repository.ActivityRepositoryInterface
	tx          repository.TxRunner
}

// New opens storage and builds the services. m overrides the configured mail
// transport when non-nil.
func New(ctx context.Context, cfg config.Config, m mailer.Mailer) (*App, error) {
	a := &App{Config: cfg}

	var s stores
	switch strings.ToLower(cfg.StorageDriver) {
	case "memory":
		mem := memory.New()
		a.Memory = mem
		s = stores{
			campaigns: mem.Campaigns(), customers: mem.Customers(), subscribers: mem.Subscribers(),
			recipients: mem.Recipients(), events: mem.Events(), templates: mem.Templates(),
			activity: mem.Activity(), tx: mem,
		}
	case "", "postgres":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		pg := repository.NewSQLStore(conn)
		s = stores{
			campaigns: pg.Campaigns(), customers: pg.Customers(), subscribers: pg.Subscribers(),
			recipients: pg.Recipients(), events: pg.Events(), templates: pg.Templates(),
			activity: pg.Activity(), tx: pg,
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if m == nil {
		var err error
		if m, err = mailer.FromConfig(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Recipients = s.recipients
	a.Campaigns = &service.CampaignService{
		CampaignRepo:  s.campaigns,
		TemplateRepo:  s.templates,
		RecipientRepo: s.recipients,
		EventRepo:     s.events,
		ActivityRepo:  s.activity,
		Resolver: &service.AudienceResolver{
			Subscribers: s.subscribers,
			Customers:   s.customers,
		},
		Synchronizer: &service.RecipientSynchronizer{
			Recipients: s.recipients,
		},
		Mailer:        m,
		Renderer:      mailer.Layout{},
		PublicBaseURL: cfg.PublicBaseURL,
	}
	a.Recorder = service.NewEventRecorder(s.tx)
	a.Worker = service.NewWorker(a.Recorder)
	return a, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
