// Package app assembles the registry from configuration: stores, services,
// handlers and the HTTP router.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/config"
	"github.com/jwalitptl/citizen-registry/internal/handler/appointment"
	authhandler "github.com/jwalitptl/citizen-registry/internal/handler/auth"
	"github.com/jwalitptl/citizen-registry/internal/handler/citizen"
	"github.com/jwalitptl/citizen-registry/internal/handler/demande"
	"github.com/jwalitptl/citizen-registry/internal/handler/health"
	"github.com/jwalitptl/citizen-registry/internal/handler/institution"
	"github.com/jwalitptl/citizen-registry/internal/handler/staff"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/repository/memory"
	"github.com/jwalitptl/citizen-registry/internal/repository/postgres"
	redisstore "github.com/jwalitptl/citizen-registry/internal/repository/redis"
	"github.com/jwalitptl/citizen-registry/internal/router"
	appointmentsvc "github.com/jwalitptl/citizen-registry/internal/service/appointment"
	authsvc "github.com/jwalitptl/citizen-registry/internal/service/auth"
	citizensvc "github.com/jwalitptl/citizen-registry/internal/service/citizen"
	demandesvc "github.com/jwalitptl/citizen-registry/internal/service/demande"
	institutionsvc "github.com/jwalitptl/citizen-registry/internal/service/institution"
	"github.com/jwalitptl/citizen-registry/internal/service/reference"
	staffsvc "github.com/jwalitptl/citizen-registry/internal/service/staff"
	"github.com/jwalitptl/citizen-registry/pkg/auth"
	"github.com/jwalitptl/citizen-registry/pkg/event"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
	"github.com/jwalitptl/citizen-registry/pkg/security"
)

// Stores is one persistence adapter behind the repository ports.
type Stores struct {
	Citizens     repository.CitizenRepository
	Staff        repository.StaffRepository
	Institutions repository.InstitutionRepository
	Appointments repository.AppointmentRepository
	Demandes     repository.DemandeRepository
	Outbox       repository.OutboxRepository
	Tokens       repository.RefreshTokenStore
}

// MemoryStores backs every port with process memory.
func MemoryStores() *Stores {
	return &Stores{
		Citizens:     memory.NewCitizenRepository(),
		Staff:        memory.NewStaffRepository(),
		Institutions: memory.NewInstitutionRepository(),
		Appointments: memory.NewAppointmentRepository(),
		Demandes:     memory.NewDemandeRepository(),
		Outbox:       memory.NewOutboxRepository(),
		Tokens:       memory.NewRefreshTokenStore(),
	}
}

// PostgresStores backs the entity ports with PostgreSQL. Refresh tokens go to
// Redis when a client is given, otherwise to memory.
func PostgresStores(db *sqlx.DB, rdb *goredis.Client) *Stores {
	stores := &Stores{
		Citizens:     postgres.NewCitizenRepository(db),
		Staff:        postgres.NewStaffRepository(db),
		Institutions: postgres.NewInstitutionRepository(db),
		Appointments: postgres.NewAppointmentRepository(db),
		Demandes:     postgres.NewDemandeRepository(db),
		Outbox:       postgres.NewOutboxRepository(db),
		Tokens:       memory.NewRefreshTokenStore(),
	}
	if rdb != nil {
		stores.Tokens = redisstore.NewRefreshTokenStore(rdb)
	}
	return stores
}

// Deps carries what the API needs beyond configuration.
type Deps struct {
	Config   *config.Config
	Stores   *Stores
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Checks   map[string]health.Check
}

// NewAPI wires services and handlers and returns the ready HTTP engine.
func NewAPI(deps Deps) (*gin.Engine, error) {
	cfg := deps.Config
	stores := deps.Stores
	logger := deps.Logger

	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)

	var encryptor security.Encryptor
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewAESEncryptorFromHex(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid security.encryption_key: %w", err)
		}
		encryptor = enc
	} else {
		logger.Warn().Msg("no encryption key configured, biometric enrollment disabled")
	}

	jwtSvc := auth.NewJWTService(auth.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiry,
	})

	events := event.NewOutboxRecorder(stores.Outbox, logger.With().Str("component", "outbox").Logger())
	refs := reference.NewChecker(stores.Citizens, stores.Institutions, stores.Staff, reference.DefaultConfig())

	citizenSvc := citizensvc.NewService(stores.Citizens, stores.Appointments, stores.Demandes,
		hasher, encryptor, refs, events, logger.With().Str("service", "citizen").Logger())
	staffSvc := staffsvc.NewService(stores.Staff, stores.Institutions, stores.Appointments,
		hasher, refs, events, logger.With().Str("service", "staff").Logger())
	institutionSvc := institutionsvc.NewService(stores.Institutions, stores.Staff, stores.Appointments,
		stores.Demandes, refs, events, logger.With().Str("service", "institution").Logger())
	appointmentSvc := appointmentsvc.NewService(stores.Appointments, stores.Citizens, stores.Institutions,
		stores.Staff, refs, events, logger.With().Str("service", "appointment").Logger())
	demandeSvc := demandesvc.NewService(stores.Demandes, stores.Citizens, stores.Institutions,
		stores.Staff, refs, events, logger.With().Str("service", "demande").Logger())
	authSvc := authsvc.NewService(stores.Citizens, stores.Staff, stores.Institutions, stores.Tokens,
		jwtSvc, hasher, authsvc.Config{
			RefreshExpiry:     cfg.JWT.RefreshExpiry,
			MaxFailedAttempts: authsvc.DefaultMaxFailedAttempts,
			LockoutDuration:   authsvc.DefaultLockoutDuration,
			AdminEmail:        cfg.Admin.Email,
			AdminPasswordHash: cfg.Admin.PasswordHash,
		}, logger.With().Str("service", "auth").Logger(), deps.Metrics)

	gate := middleware.NewAuthMiddleware(jwtSvc, authz.Default())
	loginLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.ClientTTL))

	authH := authhandler.NewHandler(authSvc, gate, loginLimiter.RateLimit())
	citizenH := citizen.NewHandler(citizenSvc, authSvc, gate)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}
	sizeConfig := middleware.DefaultSizeLimitConfig()
	if cfg.Server.MaxBodyBytes > 0 {
		sizeConfig.MaxBodySize = cfg.Server.MaxBodyBytes
	}

	r := router.NewRouter(gate, deps.Metrics, deps.Registry, logger, router.RouterConfig{
		RateLimit: middleware.RateLimiterConfig{
			Rate:      rateOf(cfg.RateLimit.RequestsPerSecond),
			Burst:     cfg.RateLimit.Burst,
			ClientTTL: cfg.RateLimit.ClientTTL,
		},
		CORS:      corsConfig,
		SizeLimit: sizeConfig,
		Mode:      cfg.Server.Mode,
	})

	r.Setup(
		health.NewHandler(deps.Checks),
		[]router.PublicHandler{authH, citizenH},
		[]router.Handler{
			authH,
			citizenH,
			staff.NewHandler(staffSvc, gate),
			institution.NewHandler(institutionSvc, gate),
			appointment.NewHandler(appointmentSvc, gate),
			demande.NewHandler(demandeSvc, gate),
		},
	)
	return r.Engine(), nil
}

// PingDB adapts a database handle to a readiness check.
func PingDB(db *sqlx.DB) health.Check {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

// PingRedis adapts a Redis client to a readiness check.
func PingRedis(rdb *goredis.Client) health.Check {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func rateOf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
