package agentruntime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailboxConfigValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, DefaultMailboxConfig().Validate())
}

func TestMailboxConfigValidateRejectsNonPositivePriorityQueueSizeWhenPrioritized(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.PriorityQueueSize = 0

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "MailboxConfig.PriorityQueueSize", cfgErr.Field)
}

func TestMailboxConfigValidateIgnoresSizeWhenPrioritized(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.Size = 0

	require.NoError(t, cfg.Validate())
}

func TestMailboxConfigValidateRejectsNonPositiveSizeWhenNotPrioritized(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.Prioritized = false
	cfg.Size = 0

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "MailboxConfig.Size", cfgErr.Field)
}

func TestMailboxConfigValidateIgnoresPriorityQueueSizeWhenNotPrioritized(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.Prioritized = false
	cfg.PriorityQueueSize = 0

	require.NoError(t, cfg.Validate())
}

func TestMailboxConfigValidateRejectsNegativeBackpressureTimeout(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.BackpressureTimeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "MailboxConfig.BackpressureTimeout", cfgErr.Field)
}

func TestMailboxConfigValidateAcceptsZeroBackpressureTimeout(t *testing.T) {
	cfg := DefaultMailboxConfig()
	cfg.BackpressureTimeout = 0

	require.NoError(t, cfg.Validate())
}

func TestAgentRuntimeConfigValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, DefaultAgentRuntimeConfig().Validate())
}

func TestAgentRuntimeConfigValidatePropagatesMailboxError(t *testing.T) {
	cfg := DefaultAgentRuntimeConfig()
	cfg.Mailbox.PriorityQueueSize = -1

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "MailboxConfig.PriorityQueueSize", cfgErr.Field)
}

func TestAgentRuntimeConfigValidateRejectsNegativeDrainTimeout(t *testing.T) {
	cfg := DefaultAgentRuntimeConfig()
	cfg.DrainTimeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "AgentRuntimeConfig.DrainTimeout", cfgErr.Field)
}

func TestAgentRuntimeConfigValidateRejectsNonPositiveSubscriberBufferSize(t *testing.T) {
	cfg := DefaultAgentRuntimeConfig()
	cfg.SubscriberBufferSize = 0

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "AgentRuntimeConfig.SubscriberBufferSize", cfgErr.Field)
}
