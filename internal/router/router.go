package router

import (
	"context"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/config"
	"github.com/PnGunchai/MAinventory-sub000/internal/handler"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"
	"github.com/PnGunchai/MAinventory-sub000/internal/middleware"
	"github.com/PnGunchai/MAinventory-sub000/internal/repository"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"
	"github.com/PnGunchai/MAinventory-sub000/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps carries the infrastructure built in main. Redis and LeaseCB may be nil.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	LeaseCB *infra.CircuitBreaker
	Metrics *metrics.Metrics
}

// Services exposes what main needs to start background workers.
type Services struct {
	Stock      service.StockService
	LoanOrders service.LoanOrderService
	Dispatcher *worker.Dispatcher
}

// NewRepos builds the GORM repositories behind the stock engine.
func NewRepos(db *gorm.DB) service.Repos {
	return service.Repos{
		Products:   repository.NewProductRepository(db),
		Ledger:     repository.NewLedgerRepository(db),
		Presence:   repository.NewPresenceRepository(db),
		Sequences:  repository.NewSequenceRepository(db),
		Aggregates: repository.NewAggregateRepository(db),
		Loans:      repository.NewLoanRepository(db),
		Sales:      repository.NewSaleRepository(db),
		Breakages:  repository.NewBreakageRepository(db),
		Orders:     repository.NewOrderRepository(db),
	}
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Engine ← Repository ← DB/Redis
func New(d Deps) (*gin.Engine, *Services, error) {
	cfg := d.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.RateLimiter(cfg.RateLimit, time.Minute))

	// ── Engine ───────────────────────────────────────────────────────────────
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	var leases infra.LeaseBackend
	if cfg.ClaimLeaseEnabled && d.Redis != nil && d.LeaseCB != nil {
		leases = infra.NewRedisLeases(d.Redis, d.LeaseCB)
	}
	guard := service.NewClaimGuard(leases, cfg.ClaimLeaseTTL(), d.Metrics)
	engine := service.NewEngine(NewRepos(d.DB), guard, service.NewClock(loc), d.Metrics)

	// ── Services ─────────────────────────────────────────────────────────────
	catalogSvc := service.NewCatalogService(engine, infra.NewJSONCache(d.Redis, "catalog:", 10*time.Minute))
	stockSvc := service.NewStockService(engine)
	ledgerSvc := service.NewLedgerService(engine)
	loanSvc := service.NewLoanOrderService(engine)
	saleSvc := service.NewSaleOrderService(engine)
	breakageSvc := service.NewBreakageOrderService(engine)

	// Without Redis, reconcile and recompute run inline in the request
	var (
		dispatcher *worker.Dispatcher
		reconcileQ handler.ReconcileQueue
		recomputeQ handler.RecomputeQueue
		deadJobs   func(ctx context.Context) (int64, error)
	)
	if d.Redis != nil {
		dispatcher = worker.NewDispatcher(d.Redis)
		reconcileQ, recomputeQ = dispatcher, dispatcher
		deadJobs = func(ctx context.Context) (int64, error) {
			return worker.DLQLength(ctx, d.Redis, worker.QueueStock)
		}
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	catalogH := handler.NewCatalogHandler(catalogSvc)
	stockH := handler.NewStockHandler(stockSvc, reconcileQ)
	ledgerH := handler.NewLedgerHandler(ledgerSvc)
	loansH := handler.NewLoanOrdersHandler(loanSvc, recomputeQ)
	salesH := handler.NewSaleOrdersHandler(saleSvc)
	breakagesH := handler.NewBreakageOrdersHandler(breakageSvc)

	// ── Routes ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(d.DB, d.Redis, d.LeaseCB, deadJobs))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Protected routes (JWT required)
	v1 := r.Group("/v1")
	v1.Use(middleware.JWTAuth(cfg.JWTSecret))
	{
		all := []string{middleware.RoleStaff, middleware.RoleSupervisor, middleware.RoleAdmin}
		leads := []string{middleware.RoleSupervisor, middleware.RoleAdmin}

		v1.GET("/catalog", middleware.RequireRole(all...), catalogH.List)
		v1.GET("/catalog/:box", middleware.RequireRole(all...), catalogH.Get)
		catalog := v1.Group("/catalog", middleware.RequireRole(middleware.RoleAdmin))
		{
			catalog.POST("", catalogH.Create)
			catalog.PUT("/:box", catalogH.Update)
		}

		stock := v1.Group("/stock", middleware.RequireRole(all...))
		{
			stock.POST("/add", stockH.Add)
			stock.POST("/add-bulk", stockH.AddBulk)
			stock.POST("/remove", stockH.Remove)
			stock.POST("/move", stockH.Move)
			stock.POST("/return", stockH.ReturnLent)
			stock.POST("/return-sold", stockH.ReturnSold)
			stock.POST("/recombine", stockH.Recombine)
			stock.GET("/:box", stockH.Get)
			stock.GET("/:box/presence", stockH.Presence)
		}
		v1.POST("/stock/reconcile", middleware.RequireRole(leads...), stockH.Reconcile)

		v1.GET("/barcodes/:barcode/availability", middleware.RequireRole(all...), ledgerH.Availability)
		v1.GET("/barcodes/:barcode/history", middleware.RequireRole(all...), ledgerH.History)
		v1.GET("/ledger", middleware.RequireRole(leads...), ledgerH.List)
		v1.GET("/sequences/:box/next", middleware.RequireRole(all...), ledgerH.NextSequence)

		loans := v1.Group("/loan-orders", middleware.RequireRole(all...))
		{
			loans.POST("", loansH.Create)
			loans.GET("/:id", loansH.Get)
			loans.POST("/:id/batch", loansH.Batch)
		}
		v1.POST("/loan-orders/:id/recompute", middleware.RequireRole(leads...), loansH.Recompute)

		sales := v1.Group("/sale-orders", middleware.RequireRole(all...))
		{
			sales.POST("", salesH.Create)
			sales.GET("/:id", salesH.Get)
			sales.POST("/:id/items", salesH.AddItems)
			sales.DELETE("/:id/items/:barcode", salesH.RemoveItem)
			sales.PATCH("/:id/note", salesH.UpdateNote)
		}

		breakages := v1.Group("/breakage-orders", middleware.RequireRole(all...))
		{
			breakages.POST("", breakagesH.Create)
			breakages.GET("/:id", breakagesH.Get)
		}
	}

	// Swagger UI, only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r, &Services{Stock: stockSvc, LoanOrders: loanSvc, Dispatcher: dispatcher}, nil
}
