package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeLegacyShorthand(t *testing.T) {
	require.True(t, looksLikeLegacyShorthand("topic:sensors/# qos:1"))
	require.True(t, looksLikeLegacyShorthand("qos:1"))
	require.False(t, looksLikeLegacyShorthand("topic = 'a/b'"))
	require.False(t, looksLikeLegacyShorthand("topic like 'a/b'"))
	require.False(t, looksLikeLegacyShorthand("topic:a/b and qos = 1"))
	require.False(t, looksLikeLegacyShorthand("no colon here"))
}

func TestCmdFilterAddConvertsLegacyShorthand(t *testing.T) {
	s := newSession(nil, "compact", "")
	s.cmdFilter([]string{"add", "topic:sensors/#", "qos:1"})
	require.NotNil(t, s.current)
	require.Equal(t, "topic like 'sensors/#' AND qos = 1", s.current.ToSQL())
}

func TestCmdFilterAddAcceptsWhereExpression(t *testing.T) {
	s := newSession(nil, "compact", "")
	s.cmdFilter([]string{"add", "topic", "=", "'a/b'"})
	require.NotNil(t, s.current)
	require.Equal(t, "topic = 'a/b'", s.current.ToSQL())
}

func TestCmdRuleEnableDisableRoundTrip(t *testing.T) {
	s := newSession(nil, "compact", "")
	s.cmdRuleAdd([]string{"r1", "a/b", t.TempDir() + "/r1.log"})
	require.Len(t, s.rules.Rules(), 1)
	require.True(t, s.rules.Rules()[0].Enabled)

	s.cmdRule([]string{"disable", "r1"})
	require.False(t, s.rules.Rules()[0].Enabled)

	s.cmdRule([]string{"enable", "r1"})
	require.True(t, s.rules.Rules()[0].Enabled)

	require.False(t, s.rules.SetEnabled("missing", true))
}
