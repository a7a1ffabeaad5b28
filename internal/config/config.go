package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// ImageAnalysisPrompts 管理影像分析 Prompt 的多個版本
type ImageAnalysisPrompts struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

// PromptConfig 結構
type PromptConfig struct {
	ImageAnalysis ImageAnalysisPrompts `mapstructure:"imageAnalysis"`
}

// SchedulerConfig 控制自動分析排程
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AnalyzeCronSpec string `mapstructure:"analyzeCronSpec"`
	BatchSize       int    `mapstructure:"batchSize"`
}

// Config 結構
type Config struct {
	AppName      string             `mapstructure:"appName"`
	Server       ServerConfig       `mapstructure:"server"`
	GeminiClient GeminiClientConfig `mapstructure:"geminiClient"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Prompts      PromptConfig       `mapstructure:"prompts"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// GeminiClientConfig 的 APIKey 可留空，缺少時在第一次呼叫分析才回報錯誤
type GeminiClientConfig struct {
	APIKey string `mapstructure:"apiKey"`
	Model  string `mapstructure:"model"`
}

// DatabaseConfig 的 Driver 可為 "memory" (預設，使用示範資料) 或 "mysql"
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbName"`
	MigrationsPath string `mapstructure:"migrationsPath"`
	SeedMockData   bool   `mapstructure:"seedMockData"`
}

// DSN 組合 go-sql-driver/mysql 使用的連線字串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// MigrateURL 組合 golang-migrate 使用的連線字串
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s&multiStatements=true", d.DSN())
}

// StorageConfig 的 Driver 可為 "nas" (本地檔案系統) 或 "minio"
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	NAS    NASConfig   `mapstructure:"nas"`
	MinIO  MinIOConfig `mapstructure:"minio"`
}

type NASConfig struct {
	ImagePath string `mapstructure:"imagePath"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"maxBytes"`
}

// DefaultImageAnalysisPrompt 是未設定任何 Prompt 版本時使用的指令，%s 會被替換為分析重點
const DefaultImageAnalysisPrompt = "Analyze this medical image for NCD indicators. Focus on %s. Provide findings in JSON format with fields: classification, confidence (0-1), findings_summary, and recommendations (array)."

// Load 函式
func Load(configPath string, configName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API_KEY 與前端沿用的環境變數名稱相同
	if err := v.BindEnv("geminiClient.apiKey", "GEMINICLIENT_APIKEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("無法綁定 Gemini API Key 環境變數: %w", err)
	}

	// 設定預設值
	v.SetDefault("appName", "NCD-EarlyDetect-Uganda")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("geminiClient.model", "gemini-3-flash-preview")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.migrationsPath", "file://scripts/migrate/mysql")
	v.SetDefault("database.seedMockData", true)
	v.SetDefault("storage.driver", "nas")
	v.SetDefault("storage.nas.imagePath", "./data/images")
	v.SetDefault("upload.maxBytes", 50<<20)
	v.SetDefault("prompts.imageAnalysis.currentVersion", "ncd-v1")
	v.SetDefault("prompts.imageAnalysis.versions.ncd-v1", DefaultImageAnalysisPrompt)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.analyzeCronSpec", "0 */5 * * * *")
	v.SetDefault("scheduler.batchSize", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("警告：找不到設定檔，將使用預設值和環境變數。")
		} else {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}

	switch cfg.Database.Driver {
	case "memory", "mysql":
	default:
		return nil, fmt.Errorf("不支援的資料庫驅動程式: %s", cfg.Database.Driver)
	}
	switch cfg.Storage.Driver {
	case "nas", "minio":
	default:
		return nil, fmt.Errorf("不支援的影像儲存驅動程式: %s", cfg.Storage.Driver)
	}

	// API Key 缺少不視為啟動錯誤
	if cfg.GeminiClient.APIKey == "" {
		log.Println("警告：Gemini API Key 未設定，影像分析將在呼叫時失敗。")
	}

	log.Println("資訊：設定載入成功。")
	return &cfg, nil
}

// ImageAnalysisPrompt 回傳目前版本的 Prompt 範本與版本名稱；找不到時退回預設範本
func (c *Config) ImageAnalysisPrompt() (template string, version string) {
	// viper 會將 map 的鍵轉為小寫
	key := strings.ToLower(c.Prompts.ImageAnalysis.CurrentVersion)
	if tpl, ok := c.Prompts.ImageAnalysis.Versions[key]; ok && strings.TrimSpace(tpl) != "" {
		return tpl, key
	}
	log.Printf("警告：[Config] 找不到名為 '%s' 的 imageAnalysis Prompt 版本，使用預設。", key)
	return DefaultImageAnalysisPrompt, "default-v0"
}
