package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Auth         AuthConfig         `mapstructure:"auth"`
	OSS          OSSConfig          `mapstructure:"oss"`
	Email        EmailConfig        `mapstructure:"email"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Review       ReviewConfig       `mapstructure:"review"`
	Payment      PaymentConfig      `mapstructure:"payment"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// AuthConfig 选择凭据来源
type AuthConfig struct {
	CredentialStore string       `mapstructure:"credential_store"` // database, static
	StaticUsers     []StaticUser `mapstructure:"static_users"`
}

// StaticUser 降级环境下的固定账号，PasswordHash 为 bcrypt 哈希
type StaticUser struct {
	ID           int64  `mapstructure:"id"`
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Role         string `mapstructure:"role"`
	PasswordHash string `mapstructure:"password_hash"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
	LocalDir        string `mapstructure:"local_dir"` // 未配置 OSS 时落盘目录
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	NotificationQueue string `mapstructure:"notification_queue"`
	MaxWorkers        int    `mapstructure:"max_workers"`
	MaxAttempts       int    `mapstructure:"max_attempts"`    // 单条通知最多投递次数
	DedupTTLHours     int    `mapstructure:"dedup_ttl_hours"` // 已发送记录保留时长
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SubscriptionConfig struct {
	PeriodDays         int    `mapstructure:"period_days"`
	ExpiringWindowDays int    `mapstructure:"expiring_window_days"`
	Fee                string `mapstructure:"fee"`
	Currency           string `mapstructure:"currency"`
}

// ReminderConfig 提醒节点固定为到期前 30/15/7/1 天，不可配置
type ReminderConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	MaxAttempts     int `mapstructure:"max_attempts"`
}

type UploadConfig struct {
	MaxImageSize    int64    `mapstructure:"max_image_size"`    // 图片最大字节数
	MaxDocumentSize int64    `mapstructure:"max_document_size"` // PDF 最大字节数
	AllowedTypes    []string `mapstructure:"allowed_types"`     // 允许的 MIME 类型
}

type RegistrationConfig struct {
	StagingTTLMinutes int    `mapstructure:"staging_ttl_minutes"`
	StagingPrefix     string `mapstructure:"staging_prefix"`
}

type ReviewConfig struct {
	AllowSectionOverride bool `mapstructure:"allow_section_override"`
}

type PaymentConfig struct {
	KeyID     string `mapstructure:"key_id"`
	KeySecret string `mapstructure:"key_secret"`
}

// Defaults 返回未在配置文件中出现的字段的默认值
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "debug"},
		Log:    LogConfig{Level: "info", Format: "text"},
		JWT:    JWTConfig{ExpireHours: 24},
		Auth:   AuthConfig{CredentialStore: "database"},
		Queue: QueueConfig{
			NotificationQueue: "vendor_notifications",
			MaxWorkers:        2,
			MaxAttempts:       5,
			DedupTTLHours:     24 * 30,
		},
		Subscription: SubscriptionConfig{
			PeriodDays:         365,
			ExpiringWindowDays: 30,
			Fee:                "999.00",
			Currency:           "INR",
		},
		Reminder: ReminderConfig{
			IntervalMinutes: 60,
			MaxAttempts:     3,
		},
		Upload: UploadConfig{
			MaxImageSize:    2 << 20,
			MaxDocumentSize: 5 << 20,
			AllowedTypes:    []string{"image/jpeg", "image/png", "application/pdf"},
		},
		Registration: RegistrationConfig{
			StagingTTLMinutes: 30,
			StagingPrefix:     "registration:",
		},
	}
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := checkReminderOffsets(v); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkReminderOffsets 旧配置里的 reminder.offsets_days 只接受固定的四个节点
func checkReminderOffsets(v *viper.Viper) error {
	const key = "reminder.offsets_days"
	if !v.IsSet(key) {
		return nil
	}
	got := v.GetIntSlice(key)
	if !slices.Equal(got, []int{30, 15, 7, 1}) {
		return fmt.Errorf("%s must be [30 15 7 1], got %v", key, v.Get(key))
	}
	return nil
}
