package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
)

func ctxFor(topic string, qos byte, payload string) Context {
	m := mqttpulse.NewMessage(mqttpulse.MessageData, mqttpulse.DirectionIncoming, topic, qos, []byte(payload))
	return BuildContext(m)
}

func TestCompileAndMatchEquality(t *testing.T) {
	f, err := Compile("f1", "WHERE topic = 'sensors/r1/temp'")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("sensors/r1/temp", 0, "{}")))
	require.False(t, f.Match(ctxFor("sensors/r1/humidity", 0, "{}")))
}

func TestCompileAndMatchLike(t *testing.T) {
	f, err := Compile("f2", "topic like 'sensors/%'")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("sensors/r1/temp", 0, "{}")))
	require.False(t, f.Match(ctxFor("actuators/r1", 0, "{}")))
}

func TestCompileAndMatchPayloadPath(t *testing.T) {
	f, err := Compile("f3", "payload.value > 10 AND qos = 1")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a/b", 1, `{"value": 42}`)))
	require.False(t, f.Match(ctxFor("a/b", 0, `{"value": 42}`)))
	require.False(t, f.Match(ctxFor("a/b", 1, `{"value": 1}`)))
}

func TestCompileAndMatchOrPrecedence(t *testing.T) {
	f, err := Compile("f4", "qos = 2 OR qos = 0 AND topic = 'a/b'")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a/b", 0, "{}")))
	require.True(t, f.Match(ctxFor("x/y", 2, "{}")))
	require.False(t, f.Match(ctxFor("x/y", 0, "{}")))
}

func TestCompileIn(t *testing.T) {
	f, err := Compile("f5", "qos in (0, 1)")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a", 1, "{}")))
	require.False(t, f.Match(ctxFor("a", 2, "{}")))
}

func TestToSQLRoundTrips(t *testing.T) {
	f, err := Compile("f6", "topic = 'a/b' AND qos > 0")
	require.NoError(t, err)
	sql := f.ToSQL()
	f2, err := Compile("f6b", sql)
	require.NoError(t, err)
	require.Equal(t, f.ToSQL(), f2.ToSQL())
}

func TestConvertLegacyShorthand(t *testing.T) {
	sql := ConvertLegacy("topic:sensors/# qos:1")
	require.Equal(t, "topic like 'sensors/#' AND qos = 1", sql)

	f, err := Compile("legacy", sql)
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("sensors/r1/temp", 1, "{}")))
	require.False(t, f.Match(ctxFor("sensors/r1/temp", 0, "{}")))
}

func TestConvertLegacyIgnoresMalformedTokens(t *testing.T) {
	sql := ConvertLegacy("topic:a/b   nofield   qos:2")
	require.Equal(t, "topic like 'a/b' AND qos = 2", sql)
}

func TestParseErrorOnMalformedExpr(t *testing.T) {
	_, err := Compile("bad", "topic ===")
	require.Error(t, err)
}

func TestCompileAndMatchParenthesizedGrouping(t *testing.T) {
	f, err := Compile("g1", "topic = 'a/b' AND (qos = 1 OR qos = 2)")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a/b", 1, "{}")))
	require.True(t, f.Match(ctxFor("a/b", 2, "{}")))
	require.False(t, f.Match(ctxFor("a/b", 0, "{}")))
	require.False(t, f.Match(ctxFor("x/y", 1, "{}")))
}

func TestCompileAndMatchGroupingOverridesDefaultPrecedence(t *testing.T) {
	// Without parens this is qos=2 OR (qos=0 AND topic='a/b') — true for
	// x/y,qos=0. Parens force the OR to bind first instead.
	f, err := Compile("g2", "(qos = 2 OR qos = 0) AND topic = 'a/b'")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a/b", 0, "{}")))
	require.True(t, f.Match(ctxFor("a/b", 2, "{}")))
	require.False(t, f.Match(ctxFor("x/y", 0, "{}")))
	require.False(t, f.Match(ctxFor("x/y", 2, "{}")))
}

func TestCompileAndMatchNestedGrouping(t *testing.T) {
	f, err := Compile("g3", "topic = 'a/b' AND ((qos = 1 AND topic = 'a/b') OR qos = 9)")
	require.NoError(t, err)
	require.True(t, f.Match(ctxFor("a/b", 1, "{}")))
	require.False(t, f.Match(ctxFor("a/b", 0, "{}")))
}

func TestToSQLRoundTripsGroupedExpression(t *testing.T) {
	f, err := Compile("g4", "topic = 'a/b' AND (qos = 1 OR qos = 2)")
	require.NoError(t, err)
	sql := f.ToSQL()
	require.Contains(t, sql, "(")
	f2, err := Compile("g4b", sql)
	require.NoError(t, err)
	require.Equal(t, f.ToSQL(), f2.ToSQL())
	require.True(t, f2.Match(ctxFor("a/b", 2, "{}")))
	require.False(t, f2.Match(ctxFor("a/b", 0, "{}")))
}

func TestParseErrorOnUnclosedParen(t *testing.T) {
	_, err := Compile("bad2", "(topic = 'a/b'")
	require.Error(t, err)
}
