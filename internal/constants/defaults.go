package constants

// Default server configuration values
const (
	DefaultServerPort            = 8090
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitPerSecond    = 20.0
	DefaultRateLimitBurst        = 40
)

// Default delivery configuration values
const (
	DefaultRetryBackoffMs        = 500
	DefaultMaxBackoffMs          = 5000
	DefaultMaxAttempts           = 3
	DefaultDeliveredDelayMs      = 1000
	DefaultReadDelayMs           = 3000
	DefaultStaleThresholdSec     = 120
	DefaultMonitorIntervalSec    = 60
	DefaultWhatsAppTimeoutMs     = 10000
	DefaultWhatsAppSession       = "default"
	DefaultBreakerMaxFailures    = 5
	DefaultBreakerTimeoutSec     = 30
	DefaultDeliveryFinishTimeout = 10 // seconds allowed to record a delivery result
)

// Realtime hub values
const (
	DefaultBroadcastBuffer    = 256
	DefaultClientSendBuffer   = 64
	DefaultPresenceBuffer     = 64
	DefaultWSWriteTimeoutSec  = 10
	DefaultWSPingIntervalSec  = 30
	DefaultWSMaxMessageBytes  = 64 * 1024
	DefaultAckTimeoutSec      = 5
	DefaultPresenceTimeoutSec = 10
)

// Default storage values
const (
	DefaultDatabasePath          = "furnidesk.db"
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBackoffMs     = 50
	DefaultDatabaseMaxBackoffMs  = 2000
	EncryptionSalt               = "furnidesk-salt-v1"
	EncryptionLookupSalt         = "furnidesk-lookup-v1"
	EncryptionIterations         = 100000
	EncryptionKeySize            = 32 // AES-256
	EncryptionNonceSize          = 12 // GCM standard nonce size
	MinEncryptionSecretLength    = 32
)

// Input limits
const (
	MaxMessageContentLength  = 4096
	MaxAttachmentsPerMessage = 10
	MaxAttachmentSizeBytes   = 100 * BytesPerMegabyte
	MaxIDLength              = 128
	MaxThreadNameLength      = 120
	MaxSearchTermLength      = 200
	MaxRequestBodyBytes      = 1 << 20
	MinPhoneNumberLength     = 7
	MaxPhoneNumberLength     = 20
	BytesPerMegabyte         = 1024 * 1024
)
