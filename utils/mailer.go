package utils

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESMailer sends mail through AWS SES. It satisfies services.Mailer.
type SESMailer struct {
	client *ses.Client
	from   string
}

func NewSESMailer() (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, fmt.Errorf("AWS config load failed: %w", err)
	}
	return &SESMailer{
		client: ses.NewFromConfig(cfg),
		from:   os.Getenv("SES_EMAIL"),
	}, nil
}

func (m *SESMailer) Send(to, subject, text, html string) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(text)},
	}
	if html != "" {
		body.Html = &types.Content{Data: aws.String(html)}
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body:    body,
		},
		Source: aws.String(m.from),
	}

	_, err := m.client.SendEmail(context.TODO(), input)
	if err != nil {
		log.Printf("SES send error: %v", err)
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

// SendResetEmail mails a password reset code.
func (m *SESMailer) SendResetEmail(to, code string) error {
	subject := "Password Reset Code"
	body := fmt.Sprintf("Your password reset code is: %s\n\nUse this in the app to set a new password.", code)
	return m.Send(to, subject, body, "")
}
