package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"donation-square-connect/internal/application"
	"donation-square-connect/internal/application/webhook_handlers"
	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/backoff"
	"donation-square-connect/internal/infrastructure/cache"
	"donation-square-connect/internal/infrastructure/encryption"
	"donation-square-connect/internal/infrastructure/metrics"
	"donation-square-connect/internal/infrastructure/pubsub"
	"donation-square-connect/internal/infrastructure/repository"
	squareinfra "donation-square-connect/internal/infrastructure/square"
	"donation-square-connect/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxWebhookBodySize bounds inbound webhook payloads. Provider payloads
// are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Get configuration from environment
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	settingsURL := os.Getenv("SETTINGS_URL")
	if settingsURL == "" {
		settingsURL = appURL + "/settings"
	}

	siteCurrency := os.Getenv("SITE_CURRENCY")
	if siteCurrency == "" {
		siteCurrency = "USD"
	}

	squareAppID := os.Getenv("SQUARE_APP_ID")
	squareAppSecret := os.Getenv("SQUARE_APP_SECRET")
	if squareAppID == "" || squareAppSecret == "" {
		logger.Fatal().Msg("SQUARE_APP_ID and SQUARE_APP_SECRET environment variables are required")
	}

	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		logger.Fatal().Msg("ENCRYPTION_KEY environment variable is required")
	}

	// Connect to MongoDB
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	db := client.Database(os.Getenv("MONGODB_DATABASE"))

	// Connect to Redis (location cache + failure markers)
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	// Initialize infrastructure (implementations)
	encryptionService, err := encryption.NewService(encryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	// Initialize repositories
	credentialRepo := repository.NewMongoCredentialRepository(db)
	authStateRepo := repository.NewMongoAuthStateRepository(db)
	donationRepo := repository.NewMongoDonationRepository(db)
	subscriptionRepo := repository.NewMongoSubscriptionRepository(db)
	webhookLogRepo := repository.NewMongoWebhookLogRepository(db)

	// Provider adapter, backoff tracker, location cache, metrics
	squareClient := squareinfra.NewClient(squareAppID, squareAppSecret, logger)
	failureTracker := backoff.NewRedisFailureTracker(redisClient, logger)
	locationCache := cache.NewRedisLocationCache(redisClient, logger)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Initialize application services
	locationService := application.NewLocationService(
		credentialRepo,
		squareClient,
		locationCache,
		encryptionService,
		failureTracker,
		logger,
	)

	connectionService := application.NewConnectionService(
		credentialRepo,
		authStateRepo,
		squareClient,
		encryptionService,
		locationService,
		failureTracker,
		m,
		logger,
		squareAppID,
		siteCurrency,
	)

	// Initialize reconciliation pub/sub for the admin activity stream
	reconciliationPubSub := pubsub.NewReconciliationPubSub(logger)

	// Initialize webhook validator, dispatcher, and reconciliation handlers
	webhookValidator := application.NewWebhookValidator(logger)
	webhookDispatcher := application.NewWebhookDispatcher(logger, m)

	paymentHandler := webhook_handlers.NewPaymentHandler(donationRepo, reconciliationPubSub, logger)
	refundHandler := webhook_handlers.NewRefundHandler(donationRepo, reconciliationPubSub, logger)
	subscriptionHandler := webhook_handlers.NewSubscriptionHandler(subscriptionRepo, donationRepo, reconciliationPubSub, logger)
	invoiceHandler := webhook_handlers.NewInvoiceHandler(subscriptionRepo, donationRepo, reconciliationPubSub, logger)

	webhookDispatcher.RegisterAll(paymentHandler.EventTypes(), paymentHandler)
	webhookDispatcher.RegisterAll(refundHandler.EventTypes(), refundHandler)
	webhookDispatcher.RegisterAll(subscriptionHandler.EventTypes(), subscriptionHandler)
	webhookDispatcher.RegisterAll(invoiceHandler.EventTypes(), invoiceHandler)

	// Optional webhook signature verification. The signature covers the
	// full notification URL, which differs per mode, so the verifier is
	// built per request from the key and the request path.
	signatureKey := os.Getenv("SQUARE_WEBHOOK_SIGNATURE_KEY")
	if signatureKey == "" {
		logger.Warn().Msg("SQUARE_WEBHOOK_SIGNATURE_KEY not set, webhook signatures will not be verified")
	}

	// Background scheduler: periodic token refresh / revocation probe
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	go connectionService.RunScheduler(schedulerCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// Webhook endpoint: POST /webhooks/square/{mode}
	r.Post("/webhooks/square/{mode}", webhookHandler(webhookValidator, webhookDispatcher, signatureKey, appURL, webhookLogRepo, m, logger))

	// Connection endpoints
	r.Get("/connect/authorize", authorizeHandler(connectionService, logger))
	r.Get("/connect/callback", callbackHandler(connectionService, settingsURL, logger))
	r.Post("/connect/refresh", refreshHandler(connectionService, logger))
	r.Post("/connect/disconnect", disconnectHandler(connectionService, logger))
	r.Get("/connect/status", statusHandler(connectionService, logger))

	// Admin activity stream
	r.Get("/events/stream", eventStreamHandler(reconciliationPubSub, logger))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info().Str("port", port).Msg("Starting API server")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// requestMode extracts and validates the operating mode from the request.
func requestMode(r *http.Request) (domain.Mode, bool) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		raw = chi.URLParam(r, "mode")
	}
	if raw == "" {
		return domain.DefaultMode, true
	}
	mode := domain.Mode(raw)
	return mode, mode.Valid()
}

// webhookHandler handles provider webhook deliveries. Every path ends in
// an explicit acknowledged response: an unacknowledged webhook becomes an
// infinite retry storm from the provider.
func webhookHandler(
	validator *application.WebhookValidator,
	dispatcher *application.WebhookDispatcher,
	signatureKey string,
	appURL string,
	webhookLog ports.WebhookLogRepository,
	m *metrics.Metrics,
	logger zerolog.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := requestMode(r)
		if !ok {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}
		ctx := domain.WithMode(r.Context(), mode)

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read webhook payload")
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if signatureKey != "" {
			verifier := squareinfra.NewWebhookVerifier(signatureKey, appURL+r.URL.Path)
			signature := r.Header.Get("X-Square-HmacSha256-Signature")
			if err := verifier.Verify(payload, signature); err != nil {
				logger.Warn().Err(err).Msg("Webhook signature verification failed")
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
		}

		event, err := validator.Validate(payload)
		if err != nil {
			if m != nil {
				m.WebhookEventsRejected.Inc()
			}
			logger.Warn().Err(err).Msg("Rejected malformed webhook payload")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if m != nil {
			m.WebhookEventsReceived.WithLabelValues(event.Type).Inc()
		}

		// Audit log first; dispatch proceeds even if logging fails.
		if err := webhookLog.LogEvent(ctx, event); err != nil {
			logger.Error().Err(err).Msg("Failed to log webhook event")
		}

		handled, err := dispatcher.Dispatch(ctx, event)
		if err != nil {
			logger.Error().
				Err(err).
				Str("type", event.Type).
				Str("eventId", event.EventID).
				Msg("Failed to process webhook event")
			// 500 triggers a provider retry
			http.Error(w, "failed to process webhook event", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"received": true,
			"handled":  handled,
		})
	}
}

// authorizeHandler initiates the OAuth flow.
func authorizeHandler(connections *application.ConnectionService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := requestMode(r)
		if !ok {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}

		authURL, err := connections.BeginAuthorization(r.Context(), mode, r.URL.Query().Get("return_url"))
		if err != nil {
			logger.Error().Err(err).Str("mode", string(mode)).Msg("Failed to begin authorization")
			http.Error(w, "failed to begin authorization", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// callbackHandler handles the OAuth redirect. On failure the operator is
// sent back to the settings view with an error notice, never into a
// connected-looking state.
func callbackHandler(connections *application.ConnectionService, settingsURL string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		providerError := r.URL.Query().Get("error")

		if providerError != "" || state == "" || code == "" {
			logger.Warn().
				Str("providerError", providerError).
				Msg("Authorization callback carried no usable grant")
			http.Redirect(w, r, settingsURL+"?square_connect=error&reason="+url.QueryEscape(providerError), http.StatusFound)
			return
		}

		result, err := connections.CompleteAuthorization(r.Context(), state, code)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to complete authorization")
			http.Redirect(w, r, settingsURL+"?square_connect=error", http.StatusFound)
			return
		}

		returnURL := result.ReturnURL
		if returnURL == "" {
			returnURL = settingsURL
		}
		redirectURL := fmt.Sprintf("%s?square_connect=success&mode=%s&merchant=%s",
			returnURL,
			url.QueryEscape(string(result.Mode)),
			url.QueryEscape(result.Credential.MerchantID),
		)

		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// refreshHandler triggers a manual on-demand token refresh.
func refreshHandler(connections *application.ConnectionService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := requestMode(r)
		if !ok {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}

		if err := connections.RefreshIfNeeded(r.Context(), mode); err != nil {
			logger.Error().Err(err).Str("mode", string(mode)).Msg("Manual refresh failed")
			status := http.StatusBadGateway
			notice := "refresh failed, will retry on the next scheduled attempt"
			if domain.IsProviderRejection(err) {
				status = http.StatusConflict
				notice = "the provider rejected the stored tokens, re-authorization is required"
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"notice": notice})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"notice": "connection refreshed"})
	}
}

// disconnectHandler revokes upstream best-effort and tears down locally.
func disconnectHandler(connections *application.ConnectionService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := requestMode(r)
		if !ok {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}

		partial, err := connections.Disconnect(r.Context(), mode)
		if err != nil {
			logger.Error().Err(err).Str("mode", string(mode)).Msg("Disconnect failed")
			http.Error(w, "failed to disconnect", http.StatusInternalServerError)
			return
		}

		notice := "disconnected"
		if partial {
			notice = "disconnected locally, but the upstream revoke failed; the provider may still list this app as authorized"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"notice":  notice,
			"partial": partial,
		})
	}
}

// statusHandler reports the connection status for the settings view.
func statusHandler(connections *application.ConnectionService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := requestMode(r)
		if !ok {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}

		status, err := connections.Status(r.Context(), mode)
		if err != nil {
			logger.Error().Err(err).Str("mode", string(mode)).Msg("Failed to load connection status")
			http.Error(w, "failed to load status", http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(status)
	}
}

// eventStreamHandler serves reconciliation events as server-sent events.
func eventStreamHandler(ps *pubsub.ReconciliationPubSub, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		var filter *pubsub.ReconciliationFilter
		kinds := r.URL.Query().Get("kinds")
		appliedOnly := r.URL.Query().Get("applied_only") == "true"
		if kinds != "" || appliedOnly {
			filter = &pubsub.ReconciliationFilter{AppliedOnly: appliedOnly}
			if kinds != "" {
				filter.EntityKinds = strings.Split(kinds, ",")
			}
		}

		channel := ps.Subscribe(r.Context(), filter)
		defer ps.Unsubscribe(channel.ID)

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-channel.Events:
				if !ok {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					logger.Warn().Err(err).Msg("Failed to encode reconciliation event")
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
