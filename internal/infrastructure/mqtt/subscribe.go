package mqtt

import (
	"fmt"
)

// Subscribe asks the broker for messages matching filter. Messages are
// delivered to the OnDelivery callback, not to a per-filter handler.
//
// The broker's SUBACK may carry a failure code (0x80) instead of a granted
// QoS; that is reported as ErrSubscribeFailed.
func (c *Client) Subscribe(filter string, qos byte) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	client := c.pahoClient()
	if client == nil {
		return ErrNotConnected
	}

	// Track before subscribing; retained messages may arrive before SUBACK.
	c.subMu.Lock()
	c.subscriptions[filter] = qos
	c.subMu.Unlock()

	token := client.Subscribe(filter, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(filter)
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(filter)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	if st, ok := token.(interface{ Result() map[string]byte }); ok {
		if granted, found := st.Result()[filter]; found && granted == 0x80 {
			c.forget(filter)
			return fmt.Errorf("%w: broker rejected %q", ErrSubscribeFailed, filter)
		}
	}

	return nil
}

// Unsubscribe removes a subscription. Messages already in flight may still
// be delivered.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	client := c.pahoClient()
	if client == nil {
		return ErrNotConnected
	}

	c.forget(filter)

	token := client.Unsubscribe(filter)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) forget(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for exactly filter.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[filter]
	return exists
}
