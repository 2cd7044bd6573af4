package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowcheck/flowcheck/types"
)

const (
	MetricsNamespace = "flowcheck"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "evaluations_total",
		Help:      "Count of evaluated test cases",
	}, []string{
		"run_id",
		"test_case",
		"file",
		"result",
	})

	assertionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "assertion_failures_total",
		Help:      "Count of failed assertions by failure reason",
	}, []string{
		"reason",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of E2E test runs",
	}, []string{
		"run_id",
		"result",
	})

	runTestCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_cases_total",
		Help:      "Total number of test cases in a run",
	}, []string{
		"run_id",
	})

	runTestCasesPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_cases_passed",
		Help:      "Number of passed test cases in a run",
	}, []string{
		"run_id",
	})

	runTestCasesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_cases_failed",
		Help:      "Number of failed test cases in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of E2E test runs",
	}, []string{
		"run_id",
	})

	flowStepCoverage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "flow_step_coverage_percent",
		Help:      "Percentage of flow steps exercised by the run",
	}, []string{
		"run_id",
		"flow",
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

func RecordEvaluation(runID string, testCase string, file string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordEvaluation - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "evaluations_total",
			"run_id", runID,
			"test_case", testCase,
			"file", file,
			"result", result)
	}
	evaluationsTotal.WithLabelValues(runID, testCase, file, string(result)).Inc()
}

func RecordAssertionFailure(reason types.FailureReason) {
	assertionFailuresTotal.WithLabelValues(string(reason)).Inc()
}

func RecordRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestCasesTotal.WithLabelValues(runID).Add(float64(total))
	runTestCasesPassed.WithLabelValues(runID).Add(float64(passed))
	runTestCasesFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func RecordCoverage(runID string, flow string, percentage float64) {
	flowStepCoverage.WithLabelValues(runID, flow).Set(percentage)
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
