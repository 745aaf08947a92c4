package credit

import (
	"reflect"
	"testing"
	"time"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("loading location %q: %v", name, err)
	}
	return loc
}

// TestBucketUsage_TimezoneDayBoundary exercises spec §8.5: two ledger
// rows at 2025-01-15T23:00:00Z (100 SPU) and 2025-01-16T01:00:00Z
// (200 SPU) collapse to two UTC day-points but one Los Angeles day-point
// of 300 SPU.
func TestBucketUsage_TimezoneDayBoundary(t *testing.T) {
	rows := []usageRow{
		{operation: OperationOCR, amountSPU: 100, createdAt: time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC)},
		{operation: OperationLLM, amountSPU: 200, createdAt: time.Date(2025, 1, 16, 1, 0, 0, 0, time.UTC)},
	}

	utcReport := bucketUsage(rows, mustLoadLocation(t, "UTC"), false)
	wantUTC := UsageReport{
		DataPoints: []DataPoint{
			{Date: "2025-01-15", SPUs: 100},
			{Date: "2025-01-16", SPUs: 200},
		},
		TotalSPUs: 300,
	}
	if !reflect.DeepEqual(utcReport, wantUTC) {
		t.Errorf("bucketUsage(UTC) = %+v, want %+v", utcReport, wantUTC)
	}

	laReport := bucketUsage(rows, mustLoadLocation(t, "America/Los_Angeles"), false)
	wantLA := UsageReport{
		DataPoints: []DataPoint{{Date: "2025-01-15", SPUs: 300}},
		TotalSPUs:  300,
	}
	if !reflect.DeepEqual(laReport, wantLA) {
		t.Errorf("bucketUsage(America/Los_Angeles) = %+v, want %+v", laReport, wantLA)
	}
}

func TestBucketUsage_PerOperation(t *testing.T) {
	rows := []usageRow{
		{operation: OperationOCR, amountSPU: 10, createdAt: time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)},
		{operation: OperationLLM, amountSPU: 20, createdAt: time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)},
	}

	got := bucketUsage(rows, mustLoadLocation(t, "UTC"), true)
	want := UsageReport{
		DataPoints: []DataPoint{
			{Date: "2025-01-15", SPUs: 10, Operation: OperationOCR},
			{Date: "2025-01-15", SPUs: 20, Operation: OperationLLM},
		},
		TotalSPUs: 30,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bucketUsage(per_operation) = %+v, want %+v", got, want)
	}
}
