package services

import (
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/gigmesh/marketplace/internal/models"
	"github.com/gigmesh/marketplace/internal/utils"
)

const jobEmailHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; background-color: #f3f4f6; color: #1f2937; margin: 0; padding: 20px; }
  .container { max-width: 600px; margin: auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; }
  .header { background-color: #dbeafe; padding: 15px 20px; border-bottom: 1px solid #bfdbfe; }
  .header h1 { margin: 0; font-size: 20px; color: #1e40af; }
  .content { padding: 20px; }
  .content p { margin-top: 0; }
  ul { list-style: none; padding: 0; }
  li { padding: 8px; border-bottom: 1px solid #eee; }
  li:last-child { border-bottom: none; }
  strong { color: #000; }
</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      <p>%s</p>
      <ul>
        <li><strong>Job:</strong> %s</li>
        <li><strong>Status:</strong> %s</li>
        <li><strong>Price:</strong> $%.2f</li>
        <li><strong>Timestamp (UTC):</strong> %s</li>
      </ul>
    </div>
  </div>
</body>
</html>`

// EmailService sends lifecycle notification emails via SendGrid and, for
// new-task alerts, an SMS via Twilio. All sends are best-effort: failures are
// logged and never propagated to the lifecycle transition that triggered them.
type EmailService struct {
	sgClient        *sendgrid.Client
	twClient        *twilio.RestClient
	fromEmail       string
	fromPhone       string
	orgName         string
	sendgridSandbox bool
}

func NewEmailService(
	sgClient *sendgrid.Client,
	twClient *twilio.RestClient,
	fromEmail string,
	fromPhone string,
	orgName string,
	sendgridSandbox bool,
) *EmailService {
	return &EmailService{
		sgClient:        sgClient,
		twClient:        twClient,
		fromEmail:       fromEmail,
		fromPhone:       fromPhone,
		orgName:         orgName,
		sendgridSandbox: sendgridSandbox,
	}
}

func (e *EmailService) Send(template string, toName, toEmail, toPhone string, job *models.Job) {
	var subject, lede string
	switch template {
	case EmailTemplateNewTask:
		subject = fmt.Sprintf("New paid task %s", job.UUID)
		lede = "A requester has paid for one of your skills. Acknowledge the job to start work."
	case EmailTemplateWorkDelivered:
		subject = fmt.Sprintf("Work delivered for job %s", job.UUID)
		lede = "Your agent has delivered the work. Review and approve it, request a revision, or open a dispute within 7 days."
	case EmailTemplateJobCompleted:
		subject = fmt.Sprintf("Job %s completed", job.UUID)
		lede = "The job is complete and the agent's payment has been released."
	default:
		utils.Logger.Warnf("Unknown email template %q for job %s, skipping send", template, job.UUID)
		return
	}

	plainTextBody := fmt.Sprintf(
		"%s\n\nJob: %s\nStatus: %s\nPrice: $%.2f",
		lede, job.UUID, job.Status, job.PriceUSD,
	)
	htmlBody := fmt.Sprintf(
		jobEmailHTML,
		subject,
		subject,
		lede,
		job.UUID.String(),
		string(job.Status),
		job.PriceUSD,
		time.Now().UTC().Format(time.RFC1123Z),
	)

	// SMS only for new-task alerts.
	if template == EmailTemplateNewTask {
		if e.twClient != nil && toPhone != "" {
			params := &twilioApi.CreateMessageParams{}
			params.SetTo(toPhone)
			params.SetFrom(e.fromPhone)
			params.SetBody(subject + " :: " + plainTextBody)
			if _, smsErr := e.twClient.Api.CreateMessage(params); smsErr != nil {
				utils.Logger.WithError(smsErr).Warnf("Failed to send new-task SMS for job %s", job.UUID)
			}
		} else {
			utils.Logger.Warnf("Twilio client or phone missing, skipping SMS for job %s", job.UUID)
		}
	}

	if e.sgClient == nil {
		utils.Logger.Warnf("SendGrid client is nil, skipping %s email for job %s", template, job.UUID)
		return
	}
	from := mail.NewEmail(e.orgName, e.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	msg := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)
	msg.TrackingSettings = &mail.TrackingSettings{
		ClickTracking: &mail.ClickTrackingSetting{
			Enable: utils.Ptr(false),
		},
	}
	if e.sendgridSandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}
	if _, sgErr := e.sgClient.Send(msg); sgErr != nil {
		utils.Logger.WithError(sgErr).Warnf("Email send failure (%s) for job %s", template, job.UUID)
	}
}
