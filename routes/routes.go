package routes

import (
	"context"
	"fmt"

	"cirrusdrive/config"
	"cirrusdrive/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// ServiceContainer holds all services and dependencies
type ServiceContainer struct {
	Config       *config.Config
	Users        *services.MongoUserStore
	Records      *services.MongoRecordStore
	Ledger       *services.MongoLedger
	Blobs        services.BlobStore
	Bus          *services.EventBus
	AuthService  *services.AuthService
	FileService  *services.FileService
	AdminService *services.AdminService
	WatchService *services.WatchService
}

// NewServiceContainer wires all services against the database and the
// configured blob backend.
func NewServiceContainer(ctx context.Context, db *mongo.Database, cfg *config.Config) (*ServiceContainer, error) {
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	users := services.NewMongoUserStore(db)
	records := services.NewMongoRecordStore(db)
	ledger := services.NewMongoLedger(db)
	bus := services.NewEventBus()

	fileService := services.NewFileService(records, ledger, blobs, bus)

	return &ServiceContainer{
		Config:       cfg,
		Users:        users,
		Records:      records,
		Ledger:       ledger,
		Blobs:        blobs,
		Bus:          bus,
		AuthService:  services.NewAuthService(users, cfg.JWTSecret, cfg.JWTExpirationHours, cfg.FreeStorageLimit),
		FileService:  fileService,
		AdminService: services.NewAdminService(users, records, fileService, bus, cfg.FreeStorageLimit),
		WatchService: services.NewWatchService(records, users, bus),
	}, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (services.BlobStore, error) {
	switch cfg.StorageBackend {
	case "b2":
		return services.NewB2Store(ctx, cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName)
	case "local":
		return services.NewLocalBlobStore(cfg.LocalStoragePath, cfg.LocalStorageURL)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// SetupRoutes registers all route groups against the container.
func SetupRoutes(api *gin.RouterGroup, container *ServiceContainer) {
	RegisterAuthRoutes(api, container)
	RegisterFileRoutes(api, container)
	RegisterAdminRoutes(api, container)
}
