package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStore(t *testing.T) {
	ops := StoreOperations.WithLabelValues("load", "test")
	errs := StoreErrors.WithLabelValues("load", "test")
	beforeOps := testutil.ToFloat64(ops)
	beforeErrs := testutil.ToFloat64(errs)

	ObserveStore("load", "test", nil)
	ObserveStore("load", "test", errors.New("boom"))

	assert.Equal(t, beforeOps+2, testutil.ToFloat64(ops))
	assert.Equal(t, beforeErrs+1, testutil.ToFloat64(errs))
}

func TestHandlerExposesMetrics(t *testing.T) {
	LockFaults.Add(0)
	FlashMessages.WithLabelValues("inserted", "flash").Add(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "oncesession_lock_faults_total")
	assert.Contains(t, body, "oncesession_flash_messages_total")
}
