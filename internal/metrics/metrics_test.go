// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorRegistersAllMetrics(t *testing.T) {
	c := New()
	c.PublishTotal.WithLabelValues("accepted").Inc()
	c.InflightRequests.Set(3)

	mfs, err := c.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	require.Equal(t, float64(1), testutil.ToFloat64(c.PublishTotal.WithLabelValues("accepted")))
	require.Equal(t, float64(3), testutil.ToFloat64(c.InflightRequests))
}
