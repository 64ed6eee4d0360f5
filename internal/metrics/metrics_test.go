package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutstandingCollectorReportsLiveCountByKind(t *testing.T) {
	c := NewOutstandingCollector("test_outstanding", "test help")
	c.Track("server-response", "1")
	c.Track("server-response", "2")
	c.Track("transaction", "a")

	assert.Equal(t, 2, testutil.CollectAndCount(c))

	c.Untrack("server-response", "1")
	assert.Equal(t, 2, testutil.CollectAndCount(c))
}

func TestNewRegistryRegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.TransactionsTotal.WithLabelValues("CAPTURE", "ok").Inc()
	r.WarningsTotal.WithLabelValues("stale-response").Inc()
	r.DownloadBytesTotal.Add(128)
	r.Outstanding.Track("server-response", "1")

	families, err := reg.Gather()
	assert.Nil(t, err)
	assert.NotEmpty(t, families)
}
