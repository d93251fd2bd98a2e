package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestWorkItemsCounter(t *testing.T) {
	before := testutil.ToFloat64(WorkItemsTotal.WithLabelValues("STANDARD", "SUCCEEDED"))
	WorkItemsTotal.WithLabelValues("STANDARD", "SUCCEEDED").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(WorkItemsTotal.WithLabelValues("STANDARD", "SUCCEEDED")))
}
