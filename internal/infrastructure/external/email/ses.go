// Package email delivers guardian notifications through Amazon SES.
// Delivery is best effort: every failure is reported as a DeliveryStatus and
// never returned to the caller as an error.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/pkg/circuitbreaker"
	"github.com/superheroes-club/luz-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the SES dispatcher.
type Config struct {
	// Region is the AWS region of the SES identity.
	Region string

	// FromAddress is the verified sender address.
	FromAddress string

	// FromName is shown next to the sender address.
	FromName string

	// AccessKeyID and SecretAccessKey are optional static credentials.
	// When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the SES endpoint (local stacks).
	Endpoint string

	// ConfigurationSet is an optional SES configuration set name.
	ConfigurationSet string

	// DefaultLanguage is used when the recipient has none.
	DefaultLanguage string

	// SendTimeout bounds one SES call.
	SendTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Region:          "us-east-1",
		FromName:        "Club de Superhéroes",
		DefaultLanguage: "es",
		SendTimeout:     10 * time.Second,
	}
}

// sender is the part of the SES client the dispatcher uses.
type sender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SES DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// SESDispatcher renders a notification and sends it to the guardian's email.
type SESDispatcher struct {
	config    Config
	client    sender
	directory notification.Directory
	renderer  *notification.Renderer
	retrier   *retry.Retrier
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
}

var _ notification.Dispatcher = (*SESDispatcher)(nil)

// NewSESDispatcher loads AWS configuration and creates the dispatcher.
func NewSESDispatcher(
	ctx context.Context,
	cfg Config,
	directory notification.Directory,
	renderer *notification.Renderer,
	logger *slog.Logger,
) (*SESDispatcher, error) {
	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("email: invalid from address %q: %w", cfg.FromAddress, err)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSESDispatcher(cfg, client, directory, renderer, logger), nil
}

func newSESDispatcher(
	cfg Config,
	client sender,
	directory notification.Directory,
	renderer *notification.Renderer,
	logger *slog.Logger,
) *SESDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = DefaultConfig().DefaultLanguage
	}
	logger = logger.With("component", "ses_dispatcher")

	return &SESDispatcher{
		config:    cfg,
		client:    client,
		directory: directory,
		renderer:  renderer,
		retrier:   retry.EmailRetrier(),
		breaker: circuitbreaker.EmailBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
		logger: logger,
	}
}

// Channel implements notification.Dispatcher.
func (d *SESDispatcher) Channel() notification.ChannelType {
	return notification.ChannelTypeEmail
}

// Dispatch implements notification.Dispatcher.
func (d *SESDispatcher) Dispatch(ctx context.Context, msg notification.Message) notification.DeliveryStatus {
	if err := msg.Validate(); err != nil {
		return notification.Failed(d.Channel(), err)
	}

	recipient, err := d.directory.Lookup(ctx, msg.RecipientID)
	if err != nil {
		return notification.Failed(d.Channel(), fmt.Errorf("lookup recipient: %w", err))
	}
	if recipient.Email == "" {
		return notification.Skipped(d.Channel(), notification.ErrNoAddress)
	}

	lang := recipient.Language
	if lang == "" {
		lang = d.config.DefaultLanguage
	}
	content, err := d.renderer.Render(msg, lang)
	if err != nil {
		return notification.Failed(d.Channel(), err)
	}

	input := d.buildInput(recipient, content)

	var messageID string
	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.retrier.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
			defer cancel()

			out, err := d.client.SendEmail(callCtx, input)
			if err != nil {
				return classify(err)
			}
			if out != nil && out.MessageId != nil {
				messageID = *out.MessageId
			}
			return nil
		})
	})
	if err != nil {
		return notification.Failed(d.Channel(), fmt.Errorf("%w: %w", notification.ErrDeliveryFailed, err))
	}

	d.logger.Debug("email sent",
		"kind", msg.Kind,
		"recipient_id", msg.RecipientID,
		"message_id", messageID,
	)
	return notification.Delivered(d.Channel(), messageID)
}

func (d *SESDispatcher) buildInput(r notification.Recipient, c notification.Content) *sesv2.SendEmailInput {
	from := d.config.FromAddress
	if d.config.FromName != "" {
		from = (&mail.Address{Name: d.config.FromName, Address: d.config.FromAddress}).String()
	}
	to := r.Email
	if r.DisplayName != "" {
		to = (&mail.Address{Name: r.DisplayName, Address: r.Email}).String()
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(c.Text), Charset: aws.String("UTF-8")},
	}
	if c.HTML != "" {
		body.Html = &types.Content{Data: aws.String(c.HTML), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(c.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if d.config.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(d.config.ConfigurationSet)
	}
	return input
}

// classify marks rejections that will never succeed as permanent. Everything
// else (throttling, timeouts, 5xx) is retried.
func classify(err error) error {
	var rejected *types.MessageRejected
	var notVerified *types.MailFromDomainNotVerifiedException
	var badRequest *types.BadRequestException
	if errors.As(err, &rejected) || errors.As(err, &notVerified) || errors.As(err, &badRequest) {
		return retry.Permanent(err)
	}
	return retry.Retryable(err)
}
