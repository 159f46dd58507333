package infrastructure

import (
	"context"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"zia_backend/internal/interfaces"
)

// TwilioClient relays WhatsApp messages through Twilio's REST API.
type TwilioClient struct {
	rest *twilio.RestClient
	from string
}

func NewTwilioClient(accountSID, authToken, from string) *TwilioClient {
	return &TwilioClient{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: withWhatsAppPrefix(from),
	}
}

// withWhatsAppPrefix normalizes a number to Twilio's channel address form.
func withWhatsAppPrefix(number string) string {
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (t *TwilioClient) SendMessage(_ context.Context, to, content string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(withWhatsAppPrefix(to))
	params.SetFrom(t.from)
	params.SetBody(content)

	_, err := t.rest.Api.CreateMessage(params)
	return err
}

var _ interfaces.Messenger = (*TwilioClient)(nil)
