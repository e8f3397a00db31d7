package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
)

const (
	PaymentOptionFull    = "full"
	PaymentOptionDeposit = "deposit"
)

const (
	// DateLayout ключ дня в хранилище доступности (ISO YYYY-MM-DD)
	DateLayout = "2006-01-02"

	// TimeLayout метка времени внутри дня
	TimeLayout = "15:04"

	// MaintenanceServiceID синтетическая услуга для записей без оплаты
	MaintenanceServiceID = "maintenance"

	// DepositPercent доля предоплаты от полной стоимости
	DepositPercent = 20

	// DefaultProjectionDays горизонт дней, заполняемых по умолчанию при загрузке
	DefaultProjectionDays = 30

	// DefaultWindowDays размер скользящего окна дат для клиента
	DefaultWindowDays = 7

	// DefaultScanLimitDays ограничение перебора дат при построении окна
	DefaultScanLimitDays = 60

	// DefaultSlotHoldTTL время удержания слота на время оформления
	DefaultSlotHoldTTL = 60 // секунд

	// DefaultPollIntervalSeconds интервал опроса статуса оплаты
	DefaultPollIntervalSeconds = 3

	// DefaultPollBudgetSeconds общий бюджет опроса статуса оплаты
	DefaultPollBudgetSeconds = 30

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRPS запросов в секунду на клиента для публичных эндпоинтов
	RateLimitRPS = 5

	// RateLimitBurst допустимый всплеск запросов
	RateLimitBurst = 10

	// CheckoutAttemptsLimit попыток оформления на один email в окне
	CheckoutAttemptsLimit = 5

	// CheckoutAttemptsWindow окно ограничения попыток оформления
	CheckoutAttemptsWindow = 10 * 60 // 10 минут в секундах
)

// DefaultSlots набор меток времени по умолчанию для открытого дня.
var DefaultSlots = []string{"09:00", "10:30", "13:00", "14:30", "16:00", "19:00"}
