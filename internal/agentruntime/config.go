package agentruntime

import "time"

// MailboxConfig controls a single instance's mailbox: its capacity, whether
// priority classes are separated at all, and how long Offer waits for room
// before giving up.
type MailboxConfig struct {
	// Size is the unified queue's capacity when Prioritized is false.
	// Ignored when Prioritized is true.
	Size int

	// PriorityQueueSize is the per-priority-class channel capacity when
	// Prioritized is true. Ignored when Prioritized is false.
	PriorityQueueSize int

	// Prioritized enables the four-class HIGH/NORMAL/LOW/BACKGROUND
	// split. When false, every activity is treated as one FIFO queue
	// regardless of its Metadata.Priority.
	Prioritized bool

	// BackpressureTimeout is how long Offer blocks waiting for mailbox
	// room before returning MailboxFullError. Overridable per-activity
	// via Metadata.Timeout. Zero means Offer blocks indefinitely
	// (bounded only by ctx).
	BackpressureTimeout time.Duration
}

// DefaultMailboxConfig returns the configuration new instances use when the
// caller doesn't supply one explicitly.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{
		Size:                256,
		PriorityQueueSize:   256,
		Prioritized:         true,
		BackpressureTimeout: 5 * time.Second,
	}
}

// capacity returns the per-queue channel/token size actually in effect,
// given whether prioritization is enabled.
func (c MailboxConfig) capacity() int {
	if c.Prioritized {
		return c.PriorityQueueSize
	}

	return c.Size
}

// Validate rejects configurations that would otherwise surface as
// confusing runtime behavior (a zero-capacity channel, a negative
// timeout) rather than a clear, up-front ConfigurationError.
func (c MailboxConfig) Validate() error {
	if c.Prioritized {
		if c.PriorityQueueSize <= 0 {
			return &ConfigurationError{
				Field:  "MailboxConfig.PriorityQueueSize",
				Reason: "must be greater than zero when Prioritized is set",
			}
		}
	} else if c.Size <= 0 {
		return &ConfigurationError{
			Field:  "MailboxConfig.Size",
			Reason: "must be greater than zero",
		}
	}

	if c.BackpressureTimeout < 0 {
		return &ConfigurationError{
			Field:  "MailboxConfig.BackpressureTimeout",
			Reason: "must not be negative",
		}
	}

	return nil
}

// AgentRuntimeConfig bundles the options an instance is created with.
type AgentRuntimeConfig struct {
	// Mailbox configures the instance's prioritized mailbox.
	Mailbox MailboxConfig

	// DrainTimeout is checked by Validate (it must not be negative) but
	// is not read when an instance is terminated: Terminate and
	// Handle.Terminate use 5s unless WithDrainTimeout overrides it for
	// that call, and Shutdown uses the timeout passed to it.
	DrainTimeout time.Duration

	// SubscriberBufferSize is the per-subscriber channel capacity for
	// Subscribe; once full, the oldest buffered event is dropped to
	// make room for the newest (see fanout.go).
	SubscriberBufferSize int
}

// DefaultAgentRuntimeConfig returns the configuration new instances use
// when the caller doesn't override it via CreateOption.
func DefaultAgentRuntimeConfig() AgentRuntimeConfig {
	return AgentRuntimeConfig{
		Mailbox:              DefaultMailboxConfig(),
		DrainTimeout:         5 * time.Second,
		SubscriberBufferSize: 64,
	}
}

// Validate rejects configurations that would otherwise surface as
// confusing runtime behavior rather than a clear ConfigurationError.
func (c AgentRuntimeConfig) Validate() error {
	if err := c.Mailbox.Validate(); err != nil {
		return err
	}

	if c.DrainTimeout < 0 {
		return &ConfigurationError{
			Field:  "AgentRuntimeConfig.DrainTimeout",
			Reason: "must not be negative",
		}
	}

	if c.SubscriberBufferSize <= 0 {
		return &ConfigurationError{
			Field:  "AgentRuntimeConfig.SubscriberBufferSize",
			Reason: "must be greater than zero",
		}
	}

	return nil
}
