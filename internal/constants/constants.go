package constants

import "time"

const (
	ServiceName = "router-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultWorkflowTimeout = 10 * time.Second
	DefaultPlatformTimeout = 8 * time.Second
)

const (
	DefaultHandlerTimeout   = 5 * time.Second
	DefaultHistorySize      = 100
	DefaultBreakerThreshold = 3
	DefaultBreakerCooldown  = 30 * time.Second
)

const (
	DefaultDuplicateWindow = 5 * time.Minute
	DefaultEchoWindow      = 2 * time.Minute
	LongIncomingThreshold  = 200
)

const (
	CacheKeyPrefixDedupID      = "dedup:id:"
	CacheKeyPrefixDedupContent = "dedup:content:"
	CacheKeyPrefixSent         = "sent:"
	CacheKeyPrefixSentID       = "sent:id:"
)

const (
	DefaultJobTopic        = "route_jobs"
	DefaultEventTopic      = "domain_events"
	DefaultPolicyRedisKey  = "migration:policy"
	DefaultPolicyCacheTTL  = 5 * time.Second
	DefaultPercentageSpace = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow  = "allow"
	FallbackReject = "reject"
)

const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

const (
	PolicySourceStatic = "static"
	PolicySourceRedis  = "redis"
)

const (
	DefaultHandoffMessage = "Thanks for your patience. A member of our team will join this conversation shortly."
	DefaultHumanStatus    = "open"
)

const (
	DefaultConversationStatus = "bot"
	DefaultEligibilityExpr    = `status in ["bot", "pending"]`
)

const (
	SkipNotMessageCreated = "not_message_created"
	SkipOutgoing          = "outgoing_message"
	SkipActivity          = "activity_message"
	SkipPrivate           = "private_message"
	SkipNotBotManaged     = "not_bot_managed"
	SkipDuplicateID       = "duplicate_id"
	SkipDuplicateContent  = "duplicate_content"
	SkipBotEcho           = "bot_echo"
)
