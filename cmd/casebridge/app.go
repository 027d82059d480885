package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/health"
	"github.com/casebridge/casebridge/internal/mirror"
	"github.com/casebridge/casebridge/internal/sender"
	"github.com/casebridge/casebridge/internal/slackapi"
)

// Config is the resolved runtime configuration.
type Config struct {
	BotToken   string
	AppToken   string
	AdminToken string

	HostURL    string
	HostAPIKey string

	DedicatedChannel  string
	AllowIncidents    bool
	NotifyIncidents   bool
	IncidentType      string
	SeverityThreshold float64
	FilteredTags      []string

	StatePath       string
	PaginatedCount  int
	PollInterval    time.Duration
	HealthPort      int
	CredentialsFile string
	Investigation   string
	Debug           bool
}

// credentialsFile is the rotatable secret material the listener watches.
type credentialsFile struct {
	BotToken   string `json:"bot_token"`
	AppToken   string `json:"app_token"`
	AdminToken string `json:"admin_token"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		BotToken:          viper.GetString("bot-token"),
		AppToken:          viper.GetString("app-token"),
		AdminToken:        viper.GetString("admin-token"),
		HostURL:           viper.GetString("host-url"),
		HostAPIKey:        viper.GetString("host-api-key"),
		DedicatedChannel:  viper.GetString("dedicated-channel"),
		AllowIncidents:    viper.GetBool("allow-incidents"),
		NotifyIncidents:   viper.GetBool("notify-incidents"),
		IncidentType:      viper.GetString("incident-type"),
		SeverityThreshold: viper.GetFloat64("severity-threshold"),
		FilteredTags:      viper.GetStringSlice("filtered-tags"),
		StatePath:         viper.GetString("state-path"),
		PaginatedCount:    viper.GetInt("paginated-count"),
		PollInterval:      viper.GetDuration("poll-interval"),
		HealthPort:        viper.GetInt("health-port"),
		CredentialsFile:   viper.GetString("credentials-file"),
		Investigation:     viper.GetString("investigation"),
		Debug:             viper.GetBool("debug"),
	}

	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return cfg, fmt.Errorf("read credentials file: %w", err)
		}
		var creds credentialsFile
		if err := json.Unmarshal(data, &creds); err != nil {
			return cfg, fmt.Errorf("parse credentials file: %w", err)
		}
		cfg.BotToken = firstNonEmpty(creds.BotToken, cfg.BotToken)
		cfg.AppToken = firstNonEmpty(creds.AppToken, cfg.AppToken)
		cfg.AdminToken = firstNonEmpty(creds.AdminToken, cfg.AdminToken)
	}

	if cfg.BotToken == "" {
		return cfg, fmt.Errorf("Slack bot token required (--bot-token, CASEBRIDGE_BOT_TOKEN or credentials file)")
	}
	if cfg.HostURL == "" {
		return cfg, fmt.Errorf("case host URL required (--host-url or CASEBRIDGE_HOST_URL)")
	}
	return cfg, nil
}

// app bundles the wired collaborators every command works with.
type app struct {
	cfg Config

	botClient *slack.Client // concrete client, needed for Socket Mode
	bot       slackapi.API
	admin     slackapi.API
	store     contextstore.Store
	host      casehost.Client
	dir       *slackapi.Directory
	mirrors   *mirror.Manager
	sender    *sender.Sender
	status    *health.Status
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	botOpts := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		botOpts = append(botOpts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	botClient := slack.New(cfg.BotToken, botOpts...)

	// Channel management runs under the admin token when one is
	// configured, the bot token otherwise.
	var admin slackapi.API = botClient
	if cfg.AdminToken != "" {
		admin = slack.New(cfg.AdminToken, slack.OptionDebug(cfg.Debug))
	}

	store := contextstore.NewFileStore(cfg.StatePath)
	host := casehost.WithInvestigation(
		casehost.NewHTTPClient(cfg.HostURL, cfg.HostAPIKey), cfg.Investigation)
	dir := slackapi.NewDirectory(botClient, store, cfg.PaginatedCount)
	mirrors := mirror.NewManager(botClient, admin, store, host, dir)
	send := sender.New(botClient, admin, store, host, dir, sender.Config{
		DedicatedChannel:  cfg.DedicatedChannel,
		NotifyIncidents:   cfg.NotifyIncidents,
		SeverityThreshold: cfg.SeverityThreshold,
		FilteredTags:      cfg.FilteredTags,
	})

	return &app{
		cfg:       cfg,
		botClient: botClient,
		bot:       botClient,
		admin:     admin,
		store:     store,
		host:      host,
		dir:       dir,
		mirrors:   mirrors,
		sender:    send,
		status:    health.NewStatus(host),
	}, nil
}
