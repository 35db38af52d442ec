package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Services struct {
		GeneratorAddr string `yaml:"generator_addr"`
		OptimizerAddr string `yaml:"optimizer_addr"`
		AnalyzerAddr  string `yaml:"analyzer_addr"`
		AssemblerAddr string `yaml:"assembler_addr"`
	} `yaml:"services"`
	Production struct {
		// MaxRetries is the per-scene retry budget after the first attempt.
		MaxRetries int `yaml:"max_retries"`
		// PollIntervalSeconds between job status checks on the worker.
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		// GenerationTimeoutMinutes bounds a single generate/assemble job.
		GenerationTimeoutMinutes int `yaml:"generation_timeout_minutes"`
		// RequestTimeoutSeconds bounds one optimizer/analyzer HTTP call.
		RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
		// ApprovalTimeoutMinutes bounds the manual-mode wait; 0 waits forever.
		ApprovalTimeoutMinutes int `yaml:"approval_timeout_minutes"`
		// RunTimeoutHours caps a whole queued production run. Not applied
		// to manual-mode runs with an unbounded approval wait.
		RunTimeoutHours int `yaml:"run_timeout_hours"`
		Concurrency     int `yaml:"concurrency"`
	} `yaml:"production"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
}

var AppConfig *Config

func InitConfig() {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	applyDefaults(AppConfig)
}

func applyDefaults(c *Config) {
	if c.Production.MaxRetries == 0 {
		c.Production.MaxRetries = 1
	}
	if c.Production.PollIntervalSeconds == 0 {
		c.Production.PollIntervalSeconds = 3
	}
	if c.Production.GenerationTimeoutMinutes == 0 {
		c.Production.GenerationTimeoutMinutes = 30
	}
	if c.Production.RequestTimeoutSeconds == 0 {
		c.Production.RequestTimeoutSeconds = 60
	}
	if c.Production.RunTimeoutHours == 0 {
		c.Production.RunTimeoutHours = 6
	}
	if c.Production.Concurrency == 0 {
		c.Production.Concurrency = 5
	}
}
