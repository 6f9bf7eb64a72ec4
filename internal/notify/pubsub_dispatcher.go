package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/services"
)

// channelMessage is the wire payload handed to the downstream channel workers.
type channelMessage struct {
	OrderID string `json:"order_id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// PubSubDispatcher fans a customer message out to one Pub/Sub topic per
// delivery channel. Channel workers own the actual gateway integration.
type PubSubDispatcher struct {
	topics  map[services.Channel]*pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubDispatcher constructs a Pub/Sub backed notification dispatcher.
// Topics may be nil for channels the deployment does not serve; dispatching to
// such a channel reports a per-channel failure.
func NewPubSubDispatcher(email, sms, whatsapp *pubsub.Topic) (*PubSubDispatcher, error) {
	topics := map[services.Channel]*pubsub.Topic{}
	if email != nil {
		topics[domain.ChannelEmail] = email
	}
	if sms != nil {
		topics[domain.ChannelSMS] = sms
	}
	if whatsapp != nil {
		topics[domain.ChannelWhatsApp] = whatsapp
	}
	if len(topics) == 0 {
		return nil, errors.New("pubsub dispatcher: at least one channel topic is required")
	}
	return &PubSubDispatcher{
		topics:  topics,
		marshal: json.Marshal,
	}, nil
}

// Dispatch publishes the message to each requested channel's topic and awaits
// every publish, reporting per-channel outcomes.
func (d *PubSubDispatcher) Dispatch(ctx context.Context, dispatch services.Dispatch) (services.DispatchResult, error) {
	if d == nil || len(d.topics) == 0 {
		return services.DispatchResult{}, errors.New("pubsub dispatcher: not initialised")
	}

	statuses := make([]services.ChannelStatus, 0, len(dispatch.Channels))
	var failures int

	for _, channel := range dispatch.Channels {
		status := services.ChannelStatus{Channel: channel}

		topic, ok := d.topics[channel]
		if !ok {
			status.Error = fmt.Sprintf("channel %s not configured", channel)
			failures++
			statuses = append(statuses, status)
			continue
		}

		if err := d.publish(ctx, topic, dispatch, channel); err != nil {
			status.Error = err.Error()
			failures++
		} else {
			status.Sent = true
		}
		statuses = append(statuses, status)
	}

	result := services.DispatchResult{Statuses: statuses}
	if failures == len(dispatch.Channels) && failures > 0 {
		return result, errors.New("pubsub dispatcher: all channels failed")
	}
	return result, nil
}

func (d *PubSubDispatcher) publish(ctx context.Context, topic *pubsub.Topic, dispatch services.Dispatch, channel services.Channel) error {
	data, err := d.marshal(channelMessage{
		OrderID: dispatch.OrderID,
		Type:    string(dispatch.Type),
		Channel: string(channel),
		Message: dispatch.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal channel message: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", dispatch.OrderID)
	setAttr(attrs, "type", string(dispatch.Type))
	setAttr(attrs, "channel", string(channel))

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish channel message: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
