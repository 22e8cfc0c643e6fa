package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"anoa.com/studentportfolio/internal/config"
	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/middleware"
	"anoa.com/studentportfolio/internal/scheduler"
	"anoa.com/studentportfolio/pkg/database"
	"anoa.com/studentportfolio/pkg/queue"
	"anoa.com/studentportfolio/pkg/storage"

	draftHttp "anoa.com/studentportfolio/internal/modules/draft/delivery/http"
	draftRepo "anoa.com/studentportfolio/internal/modules/draft/repository"
	draftService "anoa.com/studentportfolio/internal/modules/draft/service"

	notiHttp "anoa.com/studentportfolio/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/studentportfolio/internal/modules/notification/repository"
	notifService "anoa.com/studentportfolio/internal/modules/notification/service"

	searchService "anoa.com/studentportfolio/internal/modules/search/service"

	settingHttp "anoa.com/studentportfolio/internal/modules/setting/delivery/http"
	settingRepo "anoa.com/studentportfolio/internal/modules/setting/repository"
	settingService "anoa.com/studentportfolio/internal/modules/setting/service"

	studentHttp "anoa.com/studentportfolio/internal/modules/student/delivery/http"
	studentRepo "anoa.com/studentportfolio/internal/modules/student/repository"
	studentService "anoa.com/studentportfolio/internal/modules/student/service"

	userHttp "anoa.com/studentportfolio/internal/modules/user/delivery/http"
	userRepo "anoa.com/studentportfolio/internal/modules/user/repository"
	userService "anoa.com/studentportfolio/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   *scheduler.Scheduler
	producer    *queue.Producer
	httpServer  *http.Server
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := userRepo.NewUserRepository(db)
	tx := database.NewTransactor(db)

	imageStorage, err := storage.NewCloudinaryStorage(storage.CloudinaryConfig{
		CloudName:    cfg.CloudinaryCloudName,
		APIKey:       cfg.CloudinaryAPIKey,
		APISecret:    cfg.CloudinaryAPISecret,
		UploadFolder: cfg.CloudinaryUploadFolder,
	})
	if err != nil {
		log.Printf("⚠️ cloudinary not configured, deliverable images disabled: %v", err)
		imageStorage = nil
	}

	var indexer searchService.StudentIndexer
	if cfg.MeiliSearchHost != "" {
		meiliHost := cfg.MeiliSearchHost
		if !strings.HasPrefix(meiliHost, "http") {
			meiliHost = "http://" + meiliHost + ":7700"
		}
		meiliClient := meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
		indexer = searchService.NewMeiliSearchService(meiliClient)
	} else {
		log.Println("⚠️ MEILISEARCH_HOST not set, profile indexing disabled")
	}

	// A nil *Producer must not end up inside the interface.
	producer := queue.NewProducer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaUsername, cfg.KafkaPassword)
	var mail queue.Publisher
	if producer != nil {
		mail = producer
	}

	authSvc := userService.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTTTL)
	authHandler := userHttp.NewAuthHandler(authSvc)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, userRepo, redisClient, mail)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient, originChecker(cfg.AllowedOrigins))

	settingRepository := settingRepo.NewSettingRepository(db)
	settingSvc := settingService.NewSettingService(settingRepository)
	settingHandler := settingHttp.NewSettingHandler(settingSvc)

	studentRepository := studentRepo.NewStudentRepository(db)
	studentSvc := studentService.NewStudentService(studentRepository)
	studentHandler := studentHttp.NewStudentHandler(studentSvc)
	merger := studentService.NewProfileMerger(studentRepository)

	draftSvc := draftService.NewDraftService(
		draftRepo.NewDraftRepository(db),
		studentSvc,
		merger,
		settingSvc,
		userRepo,
		notificationSvc,
		imageStorage,
		indexer,
		tx,
	)
	draftHandler := draftHttp.NewDraftHandler(draftSvc)

	jobs := scheduler.NewScheduler()
	if err := jobs.Register(scheduler.NewReviewSummaryJob(draftSvc, notificationSvc, cfg.ReviewSummaryCron)); err != nil {
		return nil, err
	}

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/metrics", "/healthz"},
	}))

	router.GET("/healthz", healthz(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(userRepo, cfg.JWTSecret)

	api := router.Group("/api")

	// Public routes (no auth required)
	api.POST("/auth/login", authHandler.Login)

	// Protected routes
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole())
	{
		protected.GET("/settings/:key", settingHandler.GetSetting)
		protected.GET("/students/:student_id", studentHandler.GetProfile)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	drafts := api.Group("/drafts")
	drafts.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(entity.RoleStudent))
	{
		drafts.GET("/me", draftHandler.GetMyDraft)
		drafts.PUT("/me", draftHandler.UpsertMyDraft)
		drafts.POST("/:id/submit", draftHandler.Submit)
		drafts.POST("/me/deliverables", draftHandler.AddDeliverable)
		drafts.PUT("/me/deliverables/:deliverable_id", draftHandler.UpdateDeliverable)
		drafts.DELETE("/me/deliverables/:deliverable_id", draftHandler.RemoveDeliverable)
	}

	staff := api.Group("/staff")
	staff.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(entity.RoleStaff, entity.RoleAdmin))
	{
		staff.GET("/drafts", draftHandler.ListDrafts)
		staff.GET("/drafts/:id", draftHandler.GetDraft)
		staff.GET("/drafts/:id/reviews", draftHandler.ListReviews)
		staff.PUT("/drafts/:id/status", draftHandler.UpdateStatus)
		staff.GET("/students/:student_id/draft", draftHandler.GetStudentDraft)
	}

	admin := api.Group("/admin")
	admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
	{
		admin.DELETE("/drafts/:id", draftHandler.DeleteDraft)
		admin.PUT("/settings/:key", settingHandler.PutSetting)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		scheduler:   jobs,
		producer:    producer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts the scheduler and serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	s.scheduler.Start()

	log.Printf("🚀 listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop(ctx)

	err := s.httpServer.Shutdown(ctx)
	if cerr := s.producer.Close(); cerr != nil {
		log.Printf("[Queue] failed to close producer: %v", cerr)
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	return err
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func splitOrigins(allowedOrigins string) []string {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

// originChecker accepts websocket upgrades from the CORS origins and from
// clients that send no Origin header.
func originChecker(allowedOrigins string) func(r *http.Request) bool {
	origins := splitOrigins(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(allowedOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
