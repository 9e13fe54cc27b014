package constants

import "time"

const (
	AppName            = "habitstreak"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/habitstreak/habitstreak.db"
	Version            = "v0.1.0"

	// ConnectionEnvVar overrides the keyring for PostgreSQL connection strings.
	ConnectionEnvVar = "HABITSTREAK_DB_CONNECTION"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habitstreak-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "habitstreak-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.habitstreak"
	TrayExecutable         = "habitstreak-tray"
	TraySecretHeader       = "X-Habitstreak-Secret"
	NotifyRequestTimeout   = 2 * time.Second

	// BrokenStreakNotifyMin is the smallest lost streak worth telling the user about.
	BrokenStreakNotifyMin = 3
)
