package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	WorkDir   string          `yaml:"workdir" mapstructure:"workdir"` // 工作目录，所有相对路径基于此目录
	Web       WebConfig       `yaml:"web" mapstructure:"web"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// WebConfig Web API 配置
type WebConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl" mapstructure:"token_ttl"` // 会话令牌有效期（分钟）
}

// MailConfig 邮箱访问配置
type MailConfig struct {
	// 邮件服务商预设，custom 时由登录请求提供服务器地址
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// 文件夹别名表：自由文本 → 规范文件夹名（如 工作 → Work）
	FolderAliases map[string]string `yaml:"folder_aliases" mapstructure:"folder_aliases"`
	// 归档默认文件夹
	ArchiveFolder string `yaml:"archive_folder" mapstructure:"archive_folder"`
	// 单次列表获取的最大邮件数
	MaxFetch int `yaml:"max_fetch" mapstructure:"max_fetch"`
}

// ProviderConfig 邮件服务商服务器预设
type ProviderConfig struct {
	IMAPServer string `yaml:"imap_server" mapstructure:"imap_server"`
	IMAPPort   int    `yaml:"imap_port" mapstructure:"imap_port"`
	SMTPServer string `yaml:"smtp_server" mapstructure:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port" mapstructure:"smtp_port"`
}

// GeneratorConfig 内容生成服务配置
type GeneratorConfig struct {
	APIURL  string `yaml:"api_url" mapstructure:"api_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // 秒
	// 429 退避重试次数（重试属于生成服务内部，核心不重试）
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	// 批量摘要的并发上限，1 表示串行
	MaxConcurrency   int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	ReplyTemp        float64 `yaml:"reply_temperature" mapstructure:"reply_temperature"`
	ReplyMaxTokens   int     `yaml:"reply_max_tokens" mapstructure:"reply_max_tokens"`
	SummaryMaxTokens int     `yaml:"summary_max_tokens" mapstructure:"summary_max_tokens"`
}

// HistoryConfig 命令历史存储配置
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // trace, debug, info, warn, error, fatal
	Format string `yaml:"format" mapstructure:"format"` // json, text
	Output string `yaml:"output" mapstructure:"output"` // stdout, file path
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MAILAGENT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if os.IsNotExist(err) {
				// 配置文件不存在时使用默认值
			} else {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := resolvePaths(&cfg); err != nil {
		return nil, fmt.Errorf("解析路径失败: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// resolvePaths 解析工作目录和相对路径
func resolvePaths(cfg *Config) error {
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("获取当前工作目录失败: %w", err)
		}
		cfg.WorkDir = wd
	}

	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("解析工作目录失败: %w", err)
	}
	cfg.WorkDir = workDir

	resolvePath := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(workDir, path)
	}

	cfg.History.DSN = resolvePath(cfg.History.DSN)
	if cfg.Log.Output != "" && cfg.Log.Output != "stdout" && cfg.Log.Output != "stderr" {
		cfg.Log.Output = resolvePath(cfg.Log.Output)
	}

	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("workdir", "")

	// Web 配置
	v.SetDefault("web.port", 8000)
	v.SetDefault("web.token_ttl", 720)

	// 邮箱访问配置
	v.SetDefault("mail.archive_folder", "Archive")
	v.SetDefault("mail.max_fetch", 50)
	v.SetDefault("mail.providers", map[string]ProviderConfig{
		"163":     {IMAPServer: "imap.163.com", IMAPPort: 993, SMTPServer: "smtp.163.com", SMTPPort: 465},
		"qq":      {IMAPServer: "imap.qq.com", IMAPPort: 993, SMTPServer: "smtp.qq.com", SMTPPort: 465},
		"gmail":   {IMAPServer: "imap.gmail.com", IMAPPort: 993, SMTPServer: "smtp.gmail.com", SMTPPort: 465},
		"outlook": {IMAPServer: "outlook.office365.com", IMAPPort: 993, SMTPServer: "smtp.office365.com", SMTPPort: 587},
	})
	v.SetDefault("mail.folder_aliases", map[string]string{
		"收件箱":  "INBOX",
		"归档":   "Archive",
		"工作":   "Work",
		"垃圾邮件": "Junk",
		"已删除":  "Trash",
		"草稿箱":  "Drafts",
		"已发送":  "Sent",
	})

	// 内容生成服务配置
	v.SetDefault("generator.api_url", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("generator.model", "deepseek-chat")
	v.SetDefault("generator.timeout", 30)
	v.SetDefault("generator.max_retries", 3)
	v.SetDefault("generator.max_concurrency", 1)
	v.SetDefault("generator.reply_temperature", 0.7)
	v.SetDefault("generator.reply_max_tokens", 500)
	v.SetDefault("generator.summary_max_tokens", 300)

	// 历史存储配置
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dsn", "mail-agent.db")

	// 日志配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	// 指标配置
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}

// validate 验证配置
func validate(cfg *Config) error {
	if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
		return fmt.Errorf("无效的 Web 端口: %d", cfg.Web.Port)
	}

	if cfg.Generator.APIURL == "" {
		return fmt.Errorf("generator.api_url 不能为空")
	}

	if cfg.Generator.MaxConcurrency < 1 {
		return fmt.Errorf("generator.max_concurrency 必须大于等于 1")
	}

	if cfg.Mail.MaxFetch < 1 {
		return fmt.Errorf("mail.max_fetch 必须大于等于 1")
	}

	if cfg.History.Enabled && cfg.History.DSN == "" {
		return fmt.Errorf("历史存储已启用但未配置 DSN")
	}

	return nil
}

// Watch 监听配置文件变化
// 仅热更新不涉及连接重建的设置（日志级别、文件夹别名、生成参数）
func Watch(path string, callback func(*Config) error) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILAGENT")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "配置热更新失败: 解析错误: %v\n", err)
			return
		}

		if err := validate(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "配置热更新失败: 验证错误: %v\n", err)
			return
		}

		if err := callback(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "配置热更新失败: 回调错误: %v\n", err)
			return
		}
	})

	return nil
}
