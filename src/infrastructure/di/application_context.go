package di

import (
	"errors"
	"sync"
	"time"

	"go-whatsapp-crm/src/domain/common"
	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	"go-whatsapp-crm/src/infrastructure/helper"
	"go-whatsapp-crm/src/infrastructure/utils"
	"go-whatsapp-crm/src/infrastructure/whatsapp"

	broadcastUseCase "go-whatsapp-crm/src/application/usecases/broadcast"
	quotaUseCase "go-whatsapp-crm/src/application/usecases/quota"
	scheduledUseCase "go-whatsapp-crm/src/application/usecases/scheduled"
	sendUseCase "go-whatsapp-crm/src/application/usecases/send"
	"go-whatsapp-crm/src/infrastructure/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"
	"go-whatsapp-crm/src/infrastructure/repository/mysql"
	dispatchRepo "go-whatsapp-crm/src/infrastructure/repository/mysql/dispatch"
	broadcastController "go-whatsapp-crm/src/infrastructure/rest/controllers/broadcast"
	quotaController "go-whatsapp-crm/src/infrastructure/rest/controllers/quota"
	scheduledController "go-whatsapp-crm/src/infrastructure/rest/controllers/scheduled"
	sendController "go-whatsapp-crm/src/infrastructure/rest/controllers/send"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ApplicationContext holds all application dependencies and services
type ApplicationContext struct {
	DB                           *gorm.DB
	Logger                       *logger.Logger
	CommonService                common.CommonService
	SendController               sendController.ISendController
	QuotaController              quotaController.IQuotaController
	ScheduledController          scheduledController.IScheduledController
	BroadcastController          broadcastController.IBroadcastController
	QuotaUseCase                 quotaUseCase.IQuotaUseCase
	ScheduledUseCase             scheduledUseCase.IScheduledMessageUseCase
	BroadcastUseCase             broadcastUseCase.IBroadcastUseCase
	SendUseCase                  sendUseCase.IMessageUseCase
	Processor                    *dispatch.Processor
	ProcessorConfig              dispatch.Config
	ScheduledMessageRepository   dispatchRepo.ScheduledMessageRepositoryInterface
	BroadcastRepository          dispatchRepo.BroadcastRepositoryInterface
	BroadcastRecipientRepository dispatchRepo.BroadcastRecipientRepositoryInterface
	QuotaCounterRepository       dispatchRepo.QuotaCounterRepositoryInterface
}

var (
	loggerInstance *logger.Logger
	loggerOnce     sync.Once
)

func GetLogger() *logger.Logger {
	loggerOnce.Do(func() {
		loggerInstance, _ = logger.NewLogger()
	})
	return loggerInstance
}

// SetupDependencies creates a new application context with all dependencies
func SetupDependencies(loggerInstance *logger.Logger) (*ApplicationContext, error) {
	db, err := mysql.InitMySQLDB(loggerInstance)
	if err != nil {
		return nil, err
	}

	phoneNumberID := utils.GetEnv("WHATSAPP_PHONE_NUMBER_ID", "")
	accessToken := utils.GetEnv("WHATSAPP_ACCESS_TOKEN", "")
	if phoneNumberID == "" || accessToken == "" {
		return nil, errors.New("WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN must be set")
	}
	gateway := whatsapp.NewClient(phoneNumberID, accessToken, loggerInstance)

	processorConfig, err := dispatch.LoadConfig(utils.GetEnv("DISPATCH_CONFIG", ""))
	if err != nil {
		loggerInstance.Warn("Couldn't load dispatch config, using defaults", zap.Error(err))
		processorConfig = dispatch.DefaultConfig()
	}
	limiter := rate.NewLimiter(rate.Limit(processorConfig.RatePerSecond), processorConfig.Burst)

	validator := helper.NewValidator()
	commonService := common.NewCommonService(validator)

	scheduledMessageRepository := dispatchRepo.NewScheduledMessageRepository(db, loggerInstance)
	broadcastRepository := dispatchRepo.NewBroadcastRepository(db, loggerInstance)
	broadcastRecipientRepository := dispatchRepo.NewBroadcastRecipientRepository(db, loggerInstance)
	quotaCounterRepository := dispatchRepo.NewQuotaCounterRepository(db, loggerInstance)

	quotaUC := quotaUseCase.NewQuotaUseCase(quotaCounterRepository, loggerInstance)
	scheduledUC := scheduledUseCase.NewScheduledMessageUseCase(
		scheduledMessageRepository,
		quotaUC,
		gateway,
		limiter,
		loggerInstance,
	)
	broadcastUC := broadcastUseCase.NewBroadcastUseCase(
		broadcastRepository,
		broadcastRecipientRepository,
		quotaUC,
		gateway,
		limiter,
		loggerInstance,
	)
	sendUC := sendUseCase.NewMessageUseCase(quotaUC, gateway, loggerInstance)

	lease := buildRunLease(processorConfig, loggerInstance)
	processor := dispatch.NewProcessor(scheduledUC, broadcastUC, lease, loggerInstance)

	sendCtrl := sendController.NewSendController(commonService, sendUC, loggerInstance)
	quotaCtrl := quotaController.NewQuotaController(commonService, quotaUC, loggerInstance)
	scheduledCtrl := scheduledController.NewScheduledController(commonService, scheduledUC, loggerInstance)
	broadcastCtrl := broadcastController.NewBroadcastController(commonService, broadcastUC, loggerInstance)

	return &ApplicationContext{
		DB:                           db,
		Logger:                       loggerInstance,
		CommonService:                commonService,
		SendController:               sendCtrl,
		QuotaController:              quotaCtrl,
		ScheduledController:          scheduledCtrl,
		BroadcastController:          broadcastCtrl,
		QuotaUseCase:                 quotaUC,
		ScheduledUseCase:             scheduledUC,
		BroadcastUseCase:             broadcastUC,
		SendUseCase:                  sendUC,
		Processor:                    processor,
		ProcessorConfig:              processorConfig,
		ScheduledMessageRepository:   scheduledMessageRepository,
		BroadcastRepository:          broadcastRepository,
		BroadcastRecipientRepository: broadcastRecipientRepository,
		QuotaCounterRepository:       quotaCounterRepository,
	}, nil
}

// buildRunLease picks the cross-host Redis lease when a Redis address is
// configured and falls back to the in-process lease otherwise
func buildRunLease(cfg dispatch.Config, loggerInstance *logger.Logger) dispatch.RunLease {
	redisAddr := utils.GetEnv("REDIS_ADDR", "")
	if redisAddr == "" {
		loggerInstance.Warn("REDIS_ADDR not set, run lease is local to this process")
		return dispatch.NewLocalLease()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     utils.GetEnv("REDIS_PASSWORD", ""),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	loggerInstance.Info("Using Redis run lease", zap.String("addr", redisAddr))
	return dispatch.NewRedisLease(client, time.Duration(cfg.LeaseTTL), loggerInstance)
}

// NewTestApplicationContext creates an application context for testing with mocked dependencies
func NewTestApplicationContext(
	mockScheduledRepo dispatchRepo.ScheduledMessageRepositoryInterface,
	mockBroadcastRepo dispatchRepo.BroadcastRepositoryInterface,
	mockRecipientRepo dispatchRepo.BroadcastRecipientRepositoryInterface,
	mockQuotaRepo dispatchRepo.QuotaCounterRepositoryInterface,
	mockGateway domainDispatch.IMessageGateway,
	loggerInstance *logger.Logger,
) *ApplicationContext {
	limiter := rate.NewLimiter(rate.Inf, 1)

	quotaUC := quotaUseCase.NewQuotaUseCase(mockQuotaRepo, loggerInstance)
	scheduledUC := scheduledUseCase.NewScheduledMessageUseCase(mockScheduledRepo, quotaUC, mockGateway, limiter, loggerInstance)
	broadcastUC := broadcastUseCase.NewBroadcastUseCase(mockBroadcastRepo, mockRecipientRepo, quotaUC, mockGateway, limiter, loggerInstance)
	sendUC := sendUseCase.NewMessageUseCase(quotaUC, mockGateway, loggerInstance)

	validator := helper.NewValidator()
	commonService := common.NewCommonService(validator)

	return &ApplicationContext{
		Logger:                       loggerInstance,
		CommonService:                commonService,
		SendController:               sendController.NewSendController(commonService, sendUC, loggerInstance),
		QuotaController:              quotaController.NewQuotaController(commonService, quotaUC, loggerInstance),
		ScheduledController:          scheduledController.NewScheduledController(commonService, scheduledUC, loggerInstance),
		BroadcastController:          broadcastController.NewBroadcastController(commonService, broadcastUC, loggerInstance),
		QuotaUseCase:                 quotaUC,
		ScheduledUseCase:             scheduledUC,
		BroadcastUseCase:             broadcastUC,
		SendUseCase:                  sendUC,
		ScheduledMessageRepository:   mockScheduledRepo,
		BroadcastRepository:          mockBroadcastRepo,
		BroadcastRecipientRepository: mockRecipientRepo,
		QuotaCounterRepository:       mockQuotaRepo,
	}
}
