// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	routesNoPath             = metrics.NewCounter("routes_no_path_total")
	batchesSubmitted         = metrics.NewCounter("batches_submitted_total")
	batchesDryRun            = metrics.NewCounter("batches_dry_run_total")
	gasEstimationFailures    = metrics.NewCounter("batches_gas_estimation_failed_total")
	transactionsConfirmed    = metrics.NewCounter("transactions_confirmed_total")
	transactionsFailed       = metrics.NewCounter("transactions_failed_total")
	confirmationWaitDuration = metrics.NewSummary("transactions_confirmation_wait_milliseconds")
	pairSnapshotsLoaded      = metrics.NewCounter("pair_snapshots_loaded_total")
	pairSnapshotCacheHits    = metrics.NewCounter("pair_snapshots_cache_hits_total")
)

func IncRouteFound(hops int) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`routes_found_total{hops="%d"}`, hops)).Inc()
}

func IncRouteNoPath() {
	routesNoPath.Inc()
}

func IncBatchesSubmitted() {
	batchesSubmitted.Inc()
}

func IncBatchesDryRun() {
	batchesDryRun.Inc()
}

func IncGasEstimationFailures() {
	gasEstimationFailures.Inc()
}

func IncTransactionsConfirmed() {
	transactionsConfirmed.Inc()
}

func IncTransactionsFailed() {
	transactionsFailed.Inc()
}

func RecordConfirmationWait(ms int64) {
	confirmationWaitDuration.Update(float64(ms))
}

func IncPairSnapshotsLoaded() {
	pairSnapshotsLoaded.Inc()
}

func IncPairSnapshotCacheHits() {
	pairSnapshotCacheHits.Inc()
}
