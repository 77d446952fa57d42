package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "verikit"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of test results by category, level and status",
	}, []string{
		"suite_id",
		"execution_id",
		"category",
		"level",
		"status",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of individual test executions",
		Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10),
	}, []string{
		"suite_id",
		"category",
	})

	testErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_errors_total",
		Help:      "Count of classified test errors",
	}, []string{
		"suite_id",
		"error_type",
	})

	executionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_results",
		Help:      "Result of suite executions",
	}, []string{
		"suite_id",
		"execution_id",
		"status",
	})

	executionTestTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_test_total",
		Help:      "Total number of tests in an execution",
	}, []string{
		"suite_id",
		"execution_id",
	})

	executionTestPassed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_test_passed",
		Help:      "Number of passed tests in an execution",
	}, []string{
		"suite_id",
		"execution_id",
	})

	executionTestFailed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_test_failed",
		Help:      "Number of failed tests in an execution",
	}, []string{
		"suite_id",
		"execution_id",
	})

	executionTestSkipped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_test_skipped",
		Help:      "Number of skipped tests in an execution",
	}, []string{
		"suite_id",
		"execution_id",
	})

	executionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_duration_seconds",
		Help:      "Wall clock duration of suite executions",
	}, []string{
		"suite_id",
		"execution_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTestResult records one terminal test result.
func RecordTestResult(suiteID, executionID, category, level, status string, duration time.Duration) {
	if Debug {
		log.Debug("metric inc",
			"m", "test_results_total",
			"suite_id", suiteID,
			"execution_id", executionID,
			"category", category,
			"level", level,
			"status", status)
	}
	testResultsTotal.WithLabelValues(suiteID, executionID, category, level, status).Inc()
	testDuration.WithLabelValues(suiteID, category).Observe(duration.Seconds())
}

// RecordTestError records a classified test failure.
func RecordTestError(suiteID, errorType string) {
	testErrorsTotal.WithLabelValues(suiteID, errorType).Inc()
}

// RecordExecution records the final outcome of a suite execution.
func RecordExecution(suiteID, executionID, status string, total, passed, failed, skipped int, duration time.Duration) {
	executionResults.WithLabelValues(suiteID, executionID, status).Set(1)
	executionTestTotal.WithLabelValues(suiteID, executionID).Set(float64(total))
	executionTestPassed.WithLabelValues(suiteID, executionID).Set(float64(passed))
	executionTestFailed.WithLabelValues(suiteID, executionID).Set(float64(failed))
	executionTestSkipped.WithLabelValues(suiteID, executionID).Set(float64(skipped))
	executionDuration.WithLabelValues(suiteID, executionID).Set(duration.Seconds())
}
