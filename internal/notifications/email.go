package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/orgs"
)

// SESAPI is the slice of the SES v2 client the channel uses
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel delivers negotiation events to counterparty contact
// addresses via SES.
type EmailChannel struct {
	client      SESAPI
	directory   orgs.Directory
	fromAddress string
	fromName    string
}

// NewEmailChannel creates an SES-backed email channel
func NewEmailChannel(client SESAPI, directory orgs.Directory, fromAddress, fromName string) *EmailChannel {
	return &EmailChannel{
		client:      client,
		directory:   directory,
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, event Event) error {
	var addresses []string
	for _, orgID := range event.RecipientOrgIDs {
		email, err := c.directory.ContactEmail(ctx, orgID)
		if err != nil || email == "" {
			// Unresolvable recipients are skipped, not fatal to the rest.
			continue
		}
		addresses = append(addresses, email)
	}
	if len(addresses) == 0 {
		return nil
	}

	_, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", c.fromName, c.fromAddress)),
		Destination: &types.Destination{
			ToAddresses: addresses,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(event.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(event.Body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending email for %s: %w", event.Type, err)
	}
	return nil
}
