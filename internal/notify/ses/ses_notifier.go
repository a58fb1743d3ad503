package ses

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"cbsent/internal/config"
	"cbsent/internal/port"
)

type sesNotifier struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	recipients  []string
}

// NewSESNotifier creates an SES-backed Notifier.
func NewSESNotifier(ctx context.Context, cfg *config.EmailConfig) (port.Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return NewFromConfig(awsCfg, "", cfg), nil
}

// NewFromConfig builds the notifier from a loaded AWS config. A non-empty
// endpoint overrides the SES endpoint.
func NewFromConfig(awsCfg aws.Config, endpoint string, cfg *config.EmailConfig) port.Notifier {
	var opts []func(*sesv2.Options)
	if endpoint != "" {
		opts = append(opts, func(o *sesv2.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return &sesNotifier{
		client:      sesv2.NewFromConfig(awsCfg, opts...),
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		recipients:  cfg.Recipients,
	}
}

func (s *sesNotifier) NotifyRunCompleted(ctx context.Context, summary port.RunSummary) error {
	subject := fmt.Sprintf("Sentiment run %s merged: %d valid, %d invalid", summary.RunID, summary.ValidRows, summary.InvalidRows)
	textBody := fmt.Sprintf("Run %s finished.\n\nChunks: %d\nDocuments: %d\nValid rows: %d\nInvalid rows: %d\n\nMerged table: %s\nValidation report: %s\n",
		summary.RunID, summary.TotalChunks, summary.TotalDocuments, summary.ValidRows, summary.InvalidRows,
		summary.MergedCSV, summary.ReportFile)
	return s.send(ctx, subject, textBody, buildRunCompletedHTML(summary))
}

func (s *sesNotifier) NotifyChunkFailed(ctx context.Context, failure port.ChunkFailure) error {
	subject := fmt.Sprintf("Chunk %s %s (attempt %d)", failure.ChunkName, failure.Status, failure.Attempts)
	textBody := fmt.Sprintf("Chunk %s ended as %s.\n\nJob: %s\nAttempts: %d\nDetail: %s\n\nRun resume to resubmit it.\n",
		failure.ChunkName, failure.Status, failure.JobID, failure.Attempts, failure.Detail)
	return s.send(ctx, subject, textBody, buildChunkFailedHTML(failure))
}

func (s *sesNotifier) send(ctx context.Context, subject, textBody, htmlBody string) error {
	if len(s.recipients) == 0 {
		return nil
	}
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

func buildRunCompletedHTML(s port.RunSummary) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Run %s merged</h2>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px 4px 0;">Chunks</td><td>%d</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Documents</td><td>%d</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Valid rows</td><td>%d</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Invalid rows</td><td>%d</td></tr>
  </table>
  <p style="color: #666;">Merged table: %s<br>Validation report: %s</p>
</body>
</html>`, html.EscapeString(s.RunID), s.TotalChunks, s.TotalDocuments, s.ValidRows, s.InvalidRows,
		html.EscapeString(s.MergedCSV), html.EscapeString(s.ReportFile))
}

func buildChunkFailedHTML(f port.ChunkFailure) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #b91c1c;">Chunk %s %s</h2>
  <p>Job <code>%s</code>, attempt %d.</p>
  <p style="word-break: break-all; color: #666;">%s</p>
  <p style="color: #999; font-size: 12px;">Run resume to resubmit the chunk.</p>
</body>
</html>`, html.EscapeString(f.ChunkName), html.EscapeString(f.Status), html.EscapeString(f.JobID), f.Attempts,
		html.EscapeString(f.Detail))
}
