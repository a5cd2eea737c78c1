// Package notify holds the Notifier implementations used by the engine.
//
// Outside production every message goes to LogNotifier, which only logs and
// never fails. In production SESNotifier hands the message to Amazon SES
// (v2 API); any failure there is reported as domain.ErrDeliveryFailed.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-autodaft/internal/config"
	"github.com/tbourn/go-autodaft/internal/domain"
	"github.com/tbourn/go-autodaft/internal/sysutil"
)

// Notifier mirrors services.Notifier so New can return either
// implementation.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// New picks the notifier for the configured environment. Production loads
// the default AWS credential chain for cfg.Email.Region.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Notifier, error) {
	if !cfg.Production() {
		log.Info().Str("env", cfg.Env).Msg("email delivery disabled; notifications are logged")
		return LogNotifier{Log: log}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESNotifier{
		Client:  sesv2.NewFromConfig(awsCfg),
		From:    cfg.Email.FromAddress,
		ReplyTo: cfg.Email.ReplyTo,
		Log:     log,
	}, nil
}

// LogNotifier records what would have been sent.
type LogNotifier struct {
	Log zerolog.Logger
}

// Send logs the message and returns nil.
func (n LogNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	n.Log.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(htmlBody)).
		Msg("email (not sent outside production)")
	return nil
}

// SESClient is the subset of *sesv2.Client used here.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends HTML mail through Amazon SES.
type SESNotifier struct {
	Client  SESClient
	From    string
	ReplyTo string // defaults to From
	Log     zerolog.Logger
}

// Send validates the recipient and sends one message.
func (n *SESNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %w", domain.ErrDeliveryFailed, to, err)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.From),
		Destination:      &sestypes.Destination{ToAddresses: []string{addr.Address}},
		ReplyToAddresses: []string{sysutil.FirstNonEmpty(n.ReplyTo, n.From)},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	out, err := n.Client.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("%w: ses send: %w", domain.ErrDeliveryFailed, err)
	}
	n.Log.Info().
		Str("to", addr.Address).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("email sent")
	return nil
}
