// Package autowire implements declarative topic subscription at boot
// (spec.md §4.4): iterate a slice of mqttpulse.TopicConfig, resolve each
// to its wire topic, and subscribe (plain or multi_sub fan-out)
// idempotently.
package autowire

import (
	"context"
	"fmt"

	"github.com/gsoultan/mqttpulse"
	"github.com/gsoultan/mqttpulse/pkg/dispatch"
)

// Wire subscribes every entry in topics against poolName through d. It is
// safe to call more than once with the same topics: Dispatcher.Subscribe
// and Dispatcher.MultiSub are themselves idempotent per (pool, topic), so
// re-running Wire does not duplicate receive loops.
func Wire(ctx context.Context, d *dispatch.Dispatcher, poolName string, topics []mqttpulse.TopicConfig) error {
	for _, tc := range topics {
		resolved := tc.Resolved()
		if tc.EnableMultiSub {
			if err := d.MultiSub(ctx, poolName, resolved, tc.QoS, nil, tc.MultiSub); err != nil {
				return fmt.Errorf("autowire multi_sub %q: %w", resolved, err)
			}
			continue
		}
		if err := d.Subscribe(ctx, poolName, resolved, tc.QoS, nil); err != nil {
			return fmt.Errorf("autowire subscribe %q: %w", resolved, err)
		}
	}
	return nil
}
