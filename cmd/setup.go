package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/gmail"
	"github.com/smartbots/docdispatch/internal/google"
	"github.com/smartbots/docdispatch/internal/instrumentation"
	"github.com/smartbots/docdispatch/internal/logging"
	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/mail/ses"
	"github.com/smartbots/docdispatch/internal/mail/smtp"
	"github.com/smartbots/docdispatch/internal/mail/stdout"
	"github.com/smartbots/docdispatch/internal/templates"
)

// loadSettings reads and validates the settings file.
func loadSettings(path string) (*config.Settings, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings from %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func newLogger(settings *config.Settings, debug bool) *slog.Logger {
	level := settings.Logging.Level
	if debug {
		level = "debug"
	}
	logger := logging.NewLogger(os.Stderr, level, settings.Logging.Format)
	slog.SetDefault(logger)
	return logger
}

// newProvider creates the instrumentation provider for a command. Pushgateway
// settings only apply to batch runs.
func newProvider(ctx context.Context, settings *config.Settings, push bool) (*instrumentation.Provider, instrumentation.Config, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if push {
		instrConfig.PushGateway = settings.Metrics.PushGateway
		instrConfig.PushJob = settings.Metrics.Job
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, instrConfig, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, instrConfig, nil
}

// templatePath anchors a template file name at the templates directory.
// An empty name selects the built-in template.
func templatePath(settings *config.Settings, name string) string {
	if name == "" || filepath.IsAbs(name) || settings.Path.Local.Templates == "" {
		return name
	}
	return filepath.Join(settings.Path.Local.Templates, name)
}

func loadTemplates(settings *config.Settings) (*templates.Set, error) {
	t := settings.Mail.Template
	set, err := templates.Load(
		templatePath(settings, t.Receiver),
		templatePath(settings, t.Report),
		templatePath(settings, t.Empty),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}
	return set, nil
}

// needsGoogle reports whether the run talks to a Google API.
func needsGoogle(settings *config.Settings) bool {
	if settings.Path.Drive.Enabled || settings.Dispatch.DriveFallback {
		return true
	}
	return settings.Dispatch.Transport == config.TransportAPI && !settings.Dispatch.DryRun
}

// googleHTTPClient returns an authorized client for the Gmail and Drive APIs.
func googleHTTPClient(ctx context.Context, settings *config.Settings) (*http.Client, error) {
	api := settings.Mail.Config.API
	conf, err := google.LoadOAuthConfig(api.Credentials, google.ScopesOrDefault(api.Scopes))
	if err != nil {
		return nil, err
	}

	store := google.NewTokenStore(api.Token, api.UseKeyring)
	if !google.HasToken(store) {
		return nil, fmt.Errorf("no Google OAuth token found, run 'docdispatch auth' first")
	}

	client, err := google.GetHTTPClient(ctx, conf, store)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", google.GetAuthenticationErrorMessage(err), err)
	}
	return client, nil
}

// newSender builds the mail transport selected by dispatch.transport. A dry
// run always prints to stdout.
func newSender(ctx context.Context, settings *config.Settings, httpClient *http.Client, recorder google.APIRecorder) (mail.Sender, error) {
	transport := settings.Dispatch.Transport
	if settings.Dispatch.DryRun {
		transport = config.TransportStdout
	}

	switch transport {
	case config.TransportStdout:
		return stdout.New(), nil
	case config.TransportSMTP:
		c := settings.Mail.Config.SMTP
		return smtp.New(smtp.Config{
			Server:   c.Server,
			Port:     c.Port,
			User:     c.User,
			Password: c.Password,
			From:     c.From,
		}), nil
	case config.TransportSES:
		c := settings.Mail.Config.SES
		sender, err := ses.New(ctx, ses.Config{Region: c.Region, From: c.From})
		if err != nil {
			return nil, err
		}
		return sender, nil
	case config.TransportAPI:
		if httpClient == nil {
			return nil, fmt.Errorf("the api transport needs an authorized Google client")
		}
		client, err := gmail.NewClient(ctx, httpClient)
		if err != nil {
			return nil, err
		}
		if recorder != nil {
			client = client.WithRecorder(recorder)
		}
		return client.WithFrom(settings.Mail.Config.SMTP.From), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
}
