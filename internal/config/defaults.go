package config

const (
	DefaultServerLogLevel = "info"

	DefaultInboxFolder     = "Inbox"
	DefaultProcessedFolder = "Inbox/02_PROCESSED"

	DefaultFolderCompleted          = "01_COMPLETED"
	DefaultFolderNonActionable      = "02_PROCESSED"
	DefaultFolderQuarantine         = "03_QUARANTINE"
	DefaultFolderHold               = "04_HIB"
	DefaultFolderSystemNotification = "05_SYSTEM_NOTIFICATIONS"
	DefaultFolderJiraFollowUp       = "Inbox/06_JIRA_FOLLOW_UP"

	DefaultCompletionCCAddr         = "completion.placeholder@example.invalid"
	DefaultSAMIInbox                = "health.samisupportteam@sa.gov.au"
	DefaultEnableCompletionWorkflow = false
	DefaultEnableCompletionCC       = false
	DefaultUnknownDomainMode        = UnknownDomainHoldManager
	DefaultRiskFilterEnabled        = true
	DefaultSLAMinutes               = 20
	DefaultCompletionHotlink        = true
	DefaultInternalDomain           = "sa.gov.au"

	DefaultHIBWindow       = "30m"
	DefaultHIBThreshold    = 15
	DefaultHIBCooldown     = "60m"
	DefaultPoisonThreshold = 3
	DefaultSLAEnforcement  = false

	DefaultSchedulerTickInterval      = "60s"
	DefaultSchedulerHeartbeatInterval = "300s"
	DefaultSchedulerShutdownTimeout   = "30s"
	DefaultSchedulerHistoryLimit      = 50

	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "5s"
	DefaultDaemonWatchConfig            = true
)

// Unknown-domain hold recipient modes.
const (
	UnknownDomainHoldManager = "hold_manager"
	UnknownDomainHoldApps    = "hold_apps"
	UnknownDomainHoldBoth    = "hold_both"
)
