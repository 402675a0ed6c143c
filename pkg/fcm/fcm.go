package fcm

import (
	"context"
	"fmt"

	"postmark-backend/pkg/logger"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var log = logger.For("fcm")

// maxMulticastTokens is the FCM limit for one SendEachForMulticast call.
const maxMulticastTokens = 500

const defaultIcon = "/icon-192.svg"

type Client struct {
	messaging *messaging.Client
}

func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	mc, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Info("client initialized")
	return &Client{messaging: mc}, nil
}

// NotificationData is one push shown on every registered device of a user.
type NotificationData struct {
	Title string
	Body  string
	// Link is opened by web clients when the notification is clicked.
	Link string
	Data map[string]string
}

// SendToDevices fans n out to tokens and returns the tokens FCM rejected.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, n NotificationData) ([]string, error) {
	var failed []string
	for _, batch := range chunk(tokens, maxMulticastTokens) {
		resp, err := c.messaging.SendEachForMulticast(ctx, buildMulticast(batch, n))
		if err != nil {
			return failed, fmt.Errorf("send multicast: %w", err)
		}
		log.WithField("success", resp.SuccessCount).WithField("failure", resp.FailureCount).Debug("multicast sent")

		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			failed = append(failed, batch[i])
			log.WithError(r.Error).Debug("device delivery failed")
		}
	}
	return failed, nil
}

func buildMulticast(tokens []string, n NotificationData) *messaging.MulticastMessage {
	webpush := &messaging.WebpushConfig{
		Notification: &messaging.WebpushNotification{
			Title: n.Title,
			Body:  n.Body,
			Icon:  defaultIcon,
		},
	}
	if n.Link != "" {
		webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: n.Link}
	}

	return &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Webpush:      webpush,
	}
}

func chunk(tokens []string, size int) [][]string {
	var batches [][]string
	for len(tokens) > size {
		batches = append(batches, tokens[:size])
		tokens = tokens[size:]
	}
	if len(tokens) > 0 {
		batches = append(batches, tokens)
	}
	return batches
}
