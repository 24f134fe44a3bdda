/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "4100"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SHILINGI_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"SHILINGI_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SHILINGI_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SHILINGI_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"SHILINGI_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"SHILINGI_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SHILINGI_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"SHILINGI_REDIS_DNS"`
}

// MatcherConfig carries the tunable constants of the suggestion scorer.
// The weights and windows are not business rules; they are starting points
// meant to be calibrated against each customer's statement data.
type MatcherConfig struct {
	MaxSuggestions     int     `json:"max_suggestions" envconfig:"SHILINGI_MATCHER_MAX_SUGGESTIONS"`
	AmountWeight       float64 `json:"amount_weight" envconfig:"SHILINGI_MATCHER_AMOUNT_WEIGHT"`
	DateWeight         float64 `json:"date_weight" envconfig:"SHILINGI_MATCHER_DATE_WEIGHT"`
	ReferenceWeight    float64 `json:"reference_weight" envconfig:"SHILINGI_MATCHER_REFERENCE_WEIGHT"`
	NameWeight         float64 `json:"name_weight" envconfig:"SHILINGI_MATCHER_NAME_WEIGHT"`
	AmountTolerance    float64 `json:"amount_tolerance" envconfig:"SHILINGI_MATCHER_AMOUNT_TOLERANCE"`
	MaxAmountDeviation float64 `json:"max_amount_deviation" envconfig:"SHILINGI_MATCHER_MAX_AMOUNT_DEVIATION"`
	DateWindowDays     int     `json:"date_window_days" envconfig:"SHILINGI_MATCHER_DATE_WINDOW_DAYS"`
	DateDecayPerDay    float64 `json:"date_decay_per_day" envconfig:"SHILINGI_MATCHER_DATE_DECAY_PER_DAY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SHILINGI_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SHILINGI_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SHILINGI_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Webhook struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook Webhook      `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SHILINGI_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Matcher      MatcherConfig    `json:"matcher"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("shilingi", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called shilingi.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Shilingi Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Matcher.applyDefaults()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// applyDefaults fills zero-valued matcher constants. Weights sum to 100 so
// a perfect candidate lands exactly on the score ceiling.
func (mc *MatcherConfig) applyDefaults() {
	if mc.MaxSuggestions == 0 {
		mc.MaxSuggestions = 10
	}
	if mc.AmountWeight == 0 {
		mc.AmountWeight = 40
	}
	if mc.DateWeight == 0 {
		mc.DateWeight = 30
	}
	if mc.ReferenceWeight == 0 {
		mc.ReferenceWeight = 30
	}
	if mc.NameWeight == 0 {
		mc.NameWeight = 20
	}
	if mc.AmountTolerance == 0 {
		mc.AmountTolerance = 0.01 // 1% band for partial amount credit
	}
	if mc.MaxAmountDeviation == 0 {
		mc.MaxAmountDeviation = 0.10 // beyond 10% the candidate is disqualified
	}
	if mc.DateWindowDays == 0 {
		mc.DateWindowDays = 14
	}
	if mc.DateDecayPerDay == 0 {
		mc.DateDecayPerDay = 2
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Matcher.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
