package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/internal/rundb"
	services "github.com/magenta-aps/sdlon/modules/engagement/services"
	"github.com/magenta-aps/sdlon/modules/mo/infrastructure/moclient"
	moservices "github.com/magenta-aps/sdlon/modules/mo/services"
	orgsync "github.com/magenta-aps/sdlon/modules/orgsync/services"
	"github.com/magenta-aps/sdlon/modules/sd/infrastructure/sdclient"
	sdservices "github.com/magenta-aps/sdlon/modules/sd/services"
	"github.com/magenta-aps/sdlon/pkg/configuration"
	"github.com/magenta-aps/sdlon/pkg/eventbus"
)

type appOptions struct {
	// DryRun logs mutations through the event bus instead of writing them.
	DryRun bool
	// NeedsRunDB connects the run database even when payload persistence
	// is off. Commands that track run progress require it.
	NeedsRunDB bool
	// InstitutionID overrides SD_INSTITUTION_IDENTIFIER for one invocation.
	InstitutionID string
}

// app holds the wired service graph shared by the subcommands.
type app struct {
	conf       *configuration.Configuration
	log        *logrus.Logger
	sd         *sdservices.SDService
	mo         *moservices.MOService
	resolver   *orgsync.Resolver
	treeFixer  *orgsync.TreeFixer
	nyFixer    *orgsync.NYLogicFixer
	reconciler *services.Reconciler
	runner     *services.Runner
	runs       *rundb.Store
}

func buildApp(ctx context.Context, opts appOptions) (*app, error) {
	conf := configuration.Use()
	log := conf.Logger()

	institutionID := conf.SD.InstitutionIdentifier
	if opts.InstitutionID != "" {
		institutionID = opts.InstitutionID
	}

	var runs *rundb.Store
	persistPayloads := conf.SD.PersistPayloads && !opts.DryRun
	if opts.NeedsRunDB || persistPayloads {
		store, err := rundb.New(ctx, conf.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		runs = store
	}

	sdOpts := []sdclient.Option{sdclient.WithBaseURL(conf.SD.BaseURL)}
	if persistPayloads && runs != nil {
		sdOpts = append(sdOpts, sdclient.WithPayloadRecorder(runs))
	}
	sdc := sdclient.New(conf.SD.User, conf.SD.Password, log, sdOpts...)
	sd := sdservices.NewSDService(sdc, institutionID)

	institution, err := sd.Institution(ctx)
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewEventPublisher(log)
	if opts.DryRun {
		bus.Subscribe(eventbus.LoggingSubscriber(log))
	}

	moc := moclient.New(conf.MO.BaseURL, conf.MO.APIToken, log,
		moclient.WithPageSize(conf.MO.PageSize))
	mo := moservices.NewMOService(moc, bus, log, opts.DryRun)

	resolver := orgsync.NewResolver(sd, institution.UnitUUID, conf.SD.ImportTooDeep, log)
	treeFixer := orgsync.NewTreeFixer(sd, mo, institution.UnitUUID, conf.SD.FixDepartmentsRoot, log)
	nyFixer := orgsync.NewNYLogicFixer(
		sd, mo, resolver, treeFixer,
		institutionID, conf.SD.FixDepartmentsRoot, conf.SD.ImportTooDeep,
		conf.SD.PrefixUserKeyWithInstitutionID, log,
	)

	reconciler := services.NewReconciler(sd, mo, resolver, treeFixer, services.Config{
		InstitutionID:                   institutionID,
		MonthlyHourlyDivide:             conf.SD.MonthlyHourlyDivide,
		NoSalaryMinimum:                 conf.SD.NoSalaryMinimumID,
		JobFunction:                     conf.SD.JobFunction,
		TooDeep:                         conf.SD.ImportTooDeep,
		OverwriteExistingNames:          conf.SD.OverwriteExistingEmploymentName,
		SkipLeaveCreationIfNoEngagement: conf.SD.SkipLeaveCreationIfNoEngagement,
		SkipEmploymentTypes:             conf.SD.SkipEmploymentTypes,
		CPRs:                            conf.SD.CPRs,
		ExcludeCPRsMode:                 conf.SD.ExcludeCPRsMode,
		PrefixUserKeys:                  conf.SD.PrefixUserKeyWithInstitutionID,
	}, log)

	return &app{
		conf:       conf,
		log:        log,
		sd:         sd,
		mo:         mo,
		resolver:   resolver,
		treeFixer:  treeFixer,
		nyFixer:    nyFixer,
		reconciler: reconciler,
		runner:     services.NewRunner(reconciler, runs, log),
		runs:       runs,
	}, nil
}

func (a *app) Close() {
	if a.runs != nil {
		a.runs.Close()
	}
	a.conf.Unload()
}
