package mqtt

import (
	"fmt"
	"sort"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// await waits for tok and attributes any failure to op. A missing
// acknowledgment wraps both op and ErrTimeout.
func await(tok pahomqtt.Token, timeout time.Duration, op error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %w after %v", op, ErrTimeout, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. lanwake subscribes once, to the wake command filter:
//
//	err := client.Subscribe(client.Topics().AllWakeCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := client.Topics().WakeCommandDevice(topic)
//	        return waker.Wake(ctx, id)
//	    })
//
// The subscription is remembered and restored after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Remember first so a reconnect racing this call still restores it.
	c.remember(subscription{topic: topic, qos: qos, handler: handler})

	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe drops the subscription for the exact topic filter passed to
// Subscribe. Messages already in flight may still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

// Subscriptions lists the topic filters restored on reconnect, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (c *Client) remember(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
