// Package notifier sends case notification emails via AWS SES. Delivery
// failures are logged and surfaced as errors; callers treat notification as
// best-effort and never block audit flows on it.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	appconfig "invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/models"
	"invoice-audit-engine/internal/services/cases"
	"invoice-audit-engine/internal/utils"
)

// Service handles SES email operations.
type Service struct {
	client     *ses.Client
	fromEmail  string
	inboxEmail string
}

// EmailParams represents parameters for sending an email.
type EmailParams struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	CC       []string
}

// SendResult contains the result of sending an email.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// NewService creates a new SES notifier.
func NewService(ctx context.Context, appCfg *appconfig.Config) (*Service, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Service{
		client:     ses.NewFromConfig(cfg),
		fromEmail:  appCfg.SESSenderEmail,
		inboxEmail: appCfg.CaseInboxEmail,
	}, nil
}

// SendEmail sends a basic email.
func (s *Service) SendEmail(ctx context.Context, params EmailParams) (*SendResult, error) {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{params.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(params.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if params.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(params.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if params.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(params.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if len(params.CC) > 0 {
		input.Destination.CcAddresses = params.CC
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		utils.GetLogger().Error("failed to send email",
			utils.String("to", params.To),
			utils.String("subject", params.Subject),
			utils.Error(err),
		)
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	utils.GetLogger().Info("email sent",
		utils.String("to", params.To),
		utils.String("subject", params.Subject),
		utils.String("message_id", *result.MessageId),
	)

	return &SendResult{
		MessageID: *result.MessageId,
		SentAt:    time.Now(),
	}, nil
}

// SendCaseNotification notifies the case inbox that a new case was opened.
func (s *Service) SendCaseNotification(ctx context.Context, c models.Case) (*SendResult, error) {
	if s.inboxEmail == "" {
		return nil, fmt.Errorf("no case inbox email configured")
	}

	htmlBody, err := renderCaseHTML(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	subject := fmt.Sprintf("[%s] New case: %s", c.Priority, c.Title)
	return s.SendEmail(ctx, EmailParams{
		To:       s.inboxEmail,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: renderCaseText(c),
	})
}

// SendSLAAlerts emails a digest of breached and at-risk cases to the case
// inbox. Returns the number of alerts included.
func (s *Service) SendSLAAlerts(ctx context.Context, alerts []cases.SLAAlert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	if s.inboxEmail == "" {
		return 0, fmt.Errorf("no case inbox email configured")
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%d case(s) need attention:\n\n", len(alerts)))
	for i, a := range alerts {
		assignee := a.AssignedTo
		if assignee == "" {
			assignee = "Unassigned"
		}
		buf.WriteString(fmt.Sprintf("%d. %s [%s] — %s (%s, assigned: %s)\n",
			i+1, a.CaseID, a.Priority, a.Title, a.SLAStatus, assignee))
	}

	_, err := s.SendEmail(ctx, EmailParams{
		To:       s.inboxEmail,
		Subject:  fmt.Sprintf("SLA alert: %d case(s) need attention", len(alerts)),
		TextBody: buf.String(),
	})
	if err != nil {
		return 0, err
	}
	return len(alerts), nil
}

var caseTemplate = template.Must(template.New("case_notification").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1f2937; color: white; padding: 24px; border-radius: 10px 10px 0 0; }
        .header h1 { margin: 0; font-size: 20px; }
        .content { background: #f9f9f9; padding: 24px; border-radius: 0 0 10px 10px; }
        .row { margin: 8px 0; }
        .label { font-size: 12px; color: #999; text-transform: uppercase; }
        .value { font-weight: bold; color: #333; }
        .priority { display: inline-block; background: #dc2626; color: white; padding: 4px 12px; border-radius: 16px; font-weight: bold; }
        .footer { text-align: center; margin-top: 24px; color: #999; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>Case {{.ID}} opened</p>
    </div>
    <div class="content">
        <div class="row"><span class="priority">{{.Priority}}</span></div>
        <div class="row"><div class="label">Type</div><div class="value">{{.Type}}</div></div>
        {{if .Vendor}}<div class="row"><div class="label">Vendor</div><div class="value">{{.Vendor}}</div></div>{{end}}
        {{if .AmountAtRisk}}<div class="row"><div class="label">Amount at risk</div><div class="value">{{.Currency}} {{printf "%.2f" .AmountAtRisk}}</div></div>{{end}}
        <div class="row"><div class="label">Resolve by</div><div class="value">{{.SLA.Deadline.Format "2006-01-02 15:04 MST"}}</div></div>
        <div class="row"><div class="label">Description</div><div>{{.Description}}</div></div>
    </div>
    <div class="footer">
        <p>This email was sent by the invoice audit engine.</p>
    </div>
</body>
</html>`))

func renderCaseHTML(c models.Case) (string, error) {
	var buf bytes.Buffer
	if err := caseTemplate.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderCaseText(c models.Case) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Case %s opened: %s\n\n", c.ID, c.Title))
	buf.WriteString(fmt.Sprintf("Priority: %s\nType: %s\n", c.Priority, c.Type))
	if c.Vendor != "" {
		buf.WriteString(fmt.Sprintf("Vendor: %s\n", c.Vendor))
	}
	if c.AmountAtRisk > 0 {
		buf.WriteString(fmt.Sprintf("Amount at risk: %s %.2f\n", c.Currency, c.AmountAtRisk))
	}
	buf.WriteString(fmt.Sprintf("Resolve by: %s\n\n", c.SLA.Deadline.Format("2006-01-02 15:04 MST")))
	buf.WriteString(c.Description)
	buf.WriteString("\n")
	return buf.String()
}
