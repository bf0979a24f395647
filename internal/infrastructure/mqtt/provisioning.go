package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxStatusSize bounds the provisioning status payload.
const maxStatusSize = 64 << 10

// Command is a remote provisioning command.
type Command string

// CommandRetry asks a failed provisioning pass to run again.
const CommandRetry Command = "retry"

// CommandHandler handles one command. It runs on the paho router goroutine
// and must not block.
type CommandHandler func(Command) error

// ParseCommand decodes a command payload. Surrounding whitespace and case
// are ignored.
func ParseCommand(payload []byte) (Command, error) {
	switch cmd := Command(strings.ToLower(strings.TrimSpace(string(payload)))); cmd {
	case CommandRetry:
		return cmd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, payload)
	}
}

// PublishStatus publishes v as JSON on the retained provisioning status
// topic. The payload is kept and republished after every reconnect, so a
// status produced while the broker is unreachable is delivered late
// rather than lost.
func (c *Client) PublishStatus(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding provisioning status: %w", err)
	}
	if len(payload) > maxStatusSize {
		return fmt.Errorf("%w: status is %d bytes, limit %d", ErrPublishFailed, len(payload), maxStatusSize)
	}

	c.mu.Lock()
	c.lastStatus = payload
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.client.Publish(c.topics.ProvisioningStatus(), c.qos, true, payload), ErrPublishFailed)
}

// HandleCommands subscribes h to the provisioning command topic. The
// subscription is restored after every reconnect and removed by Close.
func (c *Client) HandleCommands(h CommandHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.commands = h
	c.mu.Unlock()

	err := wait(c.client.Subscribe(c.topics.ProvisioningCommand(), c.qos, c.dispatch), ErrSubscribeFailed)
	if err != nil {
		c.mu.Lock()
		c.commands = nil
		c.mu.Unlock()
	}
	return err
}

// stopCommands removes the command subscription, if any.
func (c *Client) stopCommands() error {
	c.mu.Lock()
	active := c.commands != nil
	c.commands = nil
	c.mu.Unlock()

	if !active {
		return nil
	}
	return wait(c.client.Unsubscribe(c.topics.ProvisioningCommand()), ErrSubscribeFailed)
}

// dispatch delivers one command message to the registered handler.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("MQTT command handler panic recovered", "topic", msg.Topic(), "panic", r)
		}
	}()

	c.mu.Lock()
	h := c.commands
	c.mu.Unlock()
	if h == nil {
		return
	}

	cmd, err := ParseCommand(msg.Payload())
	if err == nil {
		err = h(cmd)
	}
	if err != nil {
		level := c.logger.Error
		if errors.Is(err, ErrUnknownCommand) {
			level = c.logger.Warn
		}
		level("MQTT command rejected", "topic", msg.Topic(), "error", err)
	}
}
