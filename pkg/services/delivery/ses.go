package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client we use.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESTransport struct {
	client SESAPI
}

func NewSESTransport(cfg aws.Config) *SESTransport {
	return NewSESTransportWithAPI(sesv2.NewFromConfig(cfg))
}

func NewSESTransportWithAPI(api SESAPI) *SESTransport {
	return &SESTransport{client: api}
}

func (t *SESTransport) Name() string {
	return "ses"
}

func (t *SESTransport) Send(ctx context.Context, sender, recipient string, raw []byte) (string, error) {
	out, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
