package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/sendgrid/sendgrid-go"
	twilio "github.com/twilio/twilio-go"

	"github.com/gigmesh/marketplace/internal/app"
	"github.com/gigmesh/marketplace/internal/config"
	"github.com/gigmesh/marketplace/internal/constants"
	"github.com/gigmesh/marketplace/internal/controllers"
	"github.com/gigmesh/marketplace/internal/middleware"
	"github.com/gigmesh/marketplace/internal/repositories"
	"github.com/gigmesh/marketplace/internal/routes"
	"github.com/gigmesh/marketplace/internal/services"
	"github.com/gigmesh/marketplace/internal/utils"
	"github.com/gigmesh/marketplace/internal/webhooks"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()
	defer cfg.Close()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize marketplace:", err)
	}
	defer application.Close()

	jobRepo := repositories.NewJobRepository(application.DB)
	agentRepo := repositories.NewAgentRepository(application.DB)
	requesterRepo := repositories.NewRequesterRepository(application.DB)
	skillRepo := repositories.NewSkillRepository(application.DB)
	subRepo := repositories.NewWebhookSubscriptionRepository(application.DB)
	deliveryRepo := repositories.NewWebhookDeliveryRepository(application.DB)

	twClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	sgClient := sendgrid.NewSendClient(cfg.SendGridAPIKey)

	notifier := webhooks.NewNotifier(
		webhooks.NewClient(constants.LegacyNotifyTimeout),
		deliveryRepo,
	)
	dispatcher := webhooks.NewDispatcher(
		webhooks.NewClient(constants.DispatcherPostTimeout),
		subRepo,
		deliveryRepo,
	)

	emailService := services.NewEmailService(
		sgClient,
		twClient,
		cfg.LDFlag_SendgridFromEmail,
		cfg.LDFlag_TwilioFromPhone,
		cfg.OrganizationName,
		cfg.LDFlag_SendgridSandboxMode,
	)
	payoutClient := services.NewTreasuryPayoutClient(cfg.TreasuryURL, cfg.InternalServiceKey, 30*time.Second)

	jobService := services.NewJobService(
		jobRepo,
		agentRepo,
		requesterRepo,
		skillRepo,
		deliveryRepo,
		dispatcher,
		notifier,
		emailService,
		payoutClient,
	)
	subService := services.NewWebhookSubscriptionService(subRepo, agentRepo)
	releaseService := services.NewJobReleaseService(jobRepo, jobService)

	jobsController := controllers.NewJobsController(jobService)
	webhooksController := controllers.NewWebhooksController(subService)
	healthController := controllers.NewHealthController(application)

	router := mux.NewRouter()

	// Public
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(cfg.RSAPublicKey))

	secured.HandleFunc(routes.JobsBase, jobsController.CreateJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobByUUID, jobsController.GetJobHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.JobAcknowledge, jobsController.AcknowledgeJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobDeliver, jobsController.DeliverJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobApprove, jobsController.ApproveJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobDispute, jobsController.DisputeJobHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobRequestRevision, jobsController.RequestRevisionHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.JobDeliveries, jobsController.ListDeliveriesHandler).Methods(http.MethodGet)

	secured.HandleFunc(routes.WebhookSubscriptions, webhooksController.CreateSubscriptionHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.WebhookSubscriptions, webhooksController.ListSubscriptionsHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.WebhookSubscriptionByID, webhooksController.UpdateSubscriptionHandler).Methods(http.MethodPut)
	secured.HandleFunc(routes.WebhookSubscriptionByID, webhooksController.DeactivateSubscriptionHandler).Methods(http.MethodDelete)
	secured.HandleFunc(routes.WebhookLegacyURL, webhooksController.SetLegacyWebhookHandler).Methods(http.MethodPut)

	internal := router.NewRoute().Subrouter()
	internal.Use(middleware.InternalAuthMiddleware(cfg.InternalServiceKey))
	internal.HandleFunc(routes.InternalConfirmPayment, jobsController.ConfirmPaymentHandler).Methods(http.MethodPost)
	internal.HandleFunc(routes.InternalResolveDispute, jobsController.ResolveDisputeHandler).Methods(http.MethodPost)

	c := cron.New()
	_, sweepErr := c.AddFunc(constants.AutoReleaseSweepSpec, func() {
		releaseService.RunSweep(context.Background())
	})
	if sweepErr != nil {
		utils.Logger.WithError(sweepErr).Fatal("Failed to schedule auto-release cron")
	}
	c.Start()

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, "http://localhost:3000")
	}
	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Service-Key"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: co.Handler(router),
	}

	go func() {
		utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal("marketplace failed to start:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	utils.Logger.Info("Shutting down marketplace...")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.WithError(err).Error("HTTP server shutdown failed")
	}

	// Drain detached side effects so in-flight webhook sequences finalize
	// their delivery records before the process exits.
	jobService.Close()
	dispatcher.Close()
	notifier.Drain()
	utils.Logger.Info("marketplace stopped.")
}
