package http

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"keystone/internal/config"
	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
	"keystone/internal/infra/db"
	"keystone/internal/infra/metrics"
	"keystone/internal/infra/noncestore"
	"keystone/internal/infra/policyopa"
	"keystone/internal/usecase"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *logrus.Logger

	keyLifecycle  *usecase.KeyLifecycle
	certLifecycle *usecase.CertLifecycle
	authoritySvc  *usecase.AuthorityService
	verifier      *usecase.Verifier
	replay        *usecase.ReplayDetector
	auditLogger   *usecase.AuditLogger
	auditRepo     usecase.AuditRepository

	metrics *metrics.Metrics

	initErr error
}

func NewServer(cfg config.Config, store *db.Store, log *logrus.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{cfg: cfg, store: store, r: r, log: log}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	KeyLifecycle  *usecase.KeyLifecycle
	CertLifecycle *usecase.CertLifecycle
	AuthoritySvc  *usecase.AuthorityService
	Verifier      *usecase.Verifier
	Replay        *usecase.ReplayDetector
	AuditLogger   *usecase.AuditLogger
	AuditRepo     usecase.AuditRepository
	Metrics       *metrics.Metrics
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps, log *logrus.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		cfg:           cfg,
		r:             r,
		log:           log,
		keyLifecycle:  deps.KeyLifecycle,
		certLifecycle: deps.CertLifecycle,
		authoritySvc:  deps.AuthoritySvc,
		verifier:      deps.Verifier,
		replay:        deps.Replay,
		auditLogger:   deps.AuditLogger,
		auditRepo:     deps.AuditRepo,
		metrics:       deps.Metrics,
	}
	s.routes()
	return s
}

func (s *Server) initDeps() {
	masterKey, err := resolveMasterKey(s.cfg)
	if err != nil {
		s.initErr = err
		return
	}

	authorizer, err := buildAuthorizer(s.cfg)
	if err != nil {
		s.initErr = err
		return
	}

	nonces, err := buildNonceStore(s.cfg)
	if err != nil {
		s.initErr = err
		return
	}

	if s.store == nil {
		s.initErr = errors.New("database store is required")
		return
	}

	auditLogger := usecase.NewAuditLogger(s.store.Audit, nil, s.log)
	s.auditLogger = auditLogger
	s.auditRepo = s.store.Audit
	s.metrics = metrics.NewMetrics()
	auditLogger.OnResult = s.metrics.RecordAuditAppend

	s.keyLifecycle = &usecase.KeyLifecycle{
		Keys:        s.store.Keys,
		Policies:    s.store.Policies,
		Authorities: s.store.Authorities,
		Authorizer:  authorizer,
		Audit:       auditLogger,
		MasterKey:   masterKey,
		Validity:    s.cfg.KeyValidity(),
	}
	s.certLifecycle = &usecase.CertLifecycle{
		Certs:       s.store.Certs,
		Authorities: s.store.Authorities,
		RootKeys:    s.store.RootKeys,
		Policies:    s.store.Policies,
		Authorizer:  authorizer,
		Audit:       auditLogger,
		MasterKey:   masterKey,
		Validity:    s.cfg.CertValidity(),
	}
	s.authoritySvc = &usecase.AuthorityService{
		Authorities: s.store.Authorities,
		RootKeys:    s.store.RootKeys,
		Audit:       auditLogger,
		MasterKey:   masterKey,
		Log:         s.log,
	}
	s.verifier = &usecase.Verifier{
		Certs:         s.store.Certs,
		Authorities:   s.store.Authorities,
		RootKeys:      s.store.RootKeys,
		Verifications: s.store.Verifications,
		Audit:         auditLogger,
	}
	s.replay = &usecase.ReplayDetector{
		Nonces: nonces,
		Audit:  auditLogger,
	}
}

// Bootstrap runs migrations and makes sure the default trust authority
// exists before the server starts accepting requests.
func (s *Server) Bootstrap(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.store != nil {
		if err := s.store.Migrate(); err != nil {
			return err
		}
	}
	if s.authoritySvc != nil {
		system := domain.Actor{ID: "system", Name: "system", Role: domain.RoleSecurityAuthority}
		if _, err := s.authoritySvc.EnsureDefault(ctx, system); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) routes() {
	s.r.Use(s.metricsMiddleware())

	s.r.GET("/healthz", func(c *gin.Context) {
		mode := "no-db"
		if s.store != nil && s.store.DB != nil {
			mode = "db"
		}
		c.JSON(200, gin.H{"status": "ok", "mode": mode})
	})
	s.r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.r.Group("/v1")
	{
		v1.POST("/keys", s.handleGenerateKey)
		v1.GET("/keys", s.handleListKeys)
		v1.POST("/keys/:id/rotate", s.handleRotateKey)
		v1.POST("/keys/:id/revoke", s.handleRevokeKey)
		v1.POST("/keys/:id/encrypt", s.handleEncryptData)
		v1.POST("/keys/:id/decrypt", s.handleDecryptData)

		v1.POST("/certificates", s.handleIssueCert)
		v1.GET("/certificates/:id", s.handleGetCert)
		v1.GET("/certificates/:id/signature", s.handleCertSignatureStatus)
		v1.POST("/certificates/:id/sign", s.handleSignCert)
		v1.POST("/certificates/:id/revoke", s.handleRevokeCert)
		v1.POST("/certificates/:id/suspend", s.handleSuspendCert)
		v1.POST("/certificates/:id/reinstate", s.handleReinstateCert)

		v1.POST("/verify", s.handleVerify)
		v1.GET("/verifications", s.handleListVerifications)
		v1.POST("/nonces", s.handleGenerateNonce)
		v1.POST("/nonces/check", s.handleCheckReplay)

		v1.POST("/authorities", s.handleCreateAuthority)
		v1.POST("/authorities/:id/rotate-root", s.handleRotateRootKey)

		v1.POST("/audit", s.handleAppendAudit)
		v1.GET("/audit", s.handleListAudit)
		v1.GET("/audit/verify", s.handleVerifyAuditChain)

		v1.GET("/maintenance/rotation-due", s.handleRotationDue)
		v1.POST("/maintenance/expire-certs", s.handleExpireCerts)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

func resolveMasterKey(cfg config.Config) (string, error) {
	if cfg.MasterKey != "" {
		return cfg.MasterKey, nil
	}
	if cfg.MasterKeyPassphrase != "" && cfg.MasterKeySalt != "" {
		return crypto.DeriveMasterKey(cfg.MasterKeyPassphrase, cfg.MasterKeySalt, cfg.KDFIterations)
	}
	return "", errors.New("MASTER_KEY or MASTER_KEY_PASSPHRASE with MASTER_KEY_SALT is required")
}

func buildAuthorizer(cfg config.Config) (usecase.Authorizer, error) {
	ctx := context.Background()
	if cfg.PolicyBundlePath != "" {
		return policyopa.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath)
	}
	return policyopa.NewEngine(ctx)
}

func buildNonceStore(cfg config.Config) (usecase.NonceStore, error) {
	if cfg.RedisAddr != "" {
		return noncestore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NonceTTL())
	}
	return noncestore.NewMemoryStore(noncestore.MemoryStoreConfig{TTL: cfg.NonceTTL()}), nil
}
