package otlpingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/analytiqhub/docrouter/pkg/credit"
	"github.com/analytiqhub/docrouter/pkg/telemetryingest"
)

var marshaler = protojson.MarshalOptions{EmitUnpopulated: false}

// Server implements the three OTLP collector Export services on one
// grpc.Server, per spec §4.J's "a single gRPC server implementing Export
// for traces, metrics, and logs".
type Server struct {
	coltracepb.UnimplementedTraceServiceServer
	colmetricpb.UnimplementedMetricsServiceServer
	collogspb.UnimplementedLogsServiceServer

	logger   *slog.Logger
	resolver *OrgResolver
	credit   *credit.Store
	traces   *telemetryingest.Store
	metrics  *telemetryingest.Store
	logs     *telemetryingest.Store
}

// New creates an otlpingest Server. traces/metrics/logs should be the same
// telemetryingest stores the HTTP transport uses, so both transports
// write the same tables.
func New(logger *slog.Logger, resolver *OrgResolver, creditStore *credit.Store, traces, metrics, logs *telemetryingest.Store) *Server {
	return &Server{
		logger:   logger,
		resolver: resolver,
		credit:   creditStore,
		traces:   traces,
		metrics:  metrics,
		logs:     logs,
	}
}

// Register mounts all three Export services on s.
func (srv *Server) Register(s *grpc.Server) {
	coltracepb.RegisterTraceServiceServer(s, srv)
	colmetricpb.RegisterMetricsServiceServer(s, srv)
	collogspb.RegisterLogsServiceServer(s, srv)
}

// ingestRecords bills len(payloads) SPU against the resolved caller's
// organization, then writes one row per payload through store. One
// payload is one ResourceSpans entry for traces, one metric for
// ExportMetrics, and one log record for ExportLogs, each billed like one
// array item of the HTTP transport.
func (srv *Server) ingestRecords(ctx context.Context, store *telemetryingest.Store, caller Caller, items []telemetryingest.InsertParams) error {
	if len(items) == 0 {
		return nil
	}
	if _, err := srv.credit.Debit(ctx, caller.OrgID, store.Operation(), "otlp-ingest", credit.FractionalCost(len(items), 1.0)); err != nil {
		return err
	}
	for i := range items {
		items[i].OrganizationID = caller.OrgID
		items[i].UploadedBy = caller.UploadedBy
		if _, err := store.Insert(ctx, items[i]); err != nil {
			return fmt.Errorf("persisting OTLP record: %w", err)
		}
	}
	return nil
}

// Export implements TraceServiceServer.
func (srv *Server) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	caller, err := srv.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]telemetryingest.InsertParams, 0, len(req.ResourceSpans))
	for _, rs := range req.ResourceSpans {
		payload, err := marshaler.Marshal(rs)
		if err != nil {
			srv.logger.Error("marshalling ResourceSpans", "error", err)
			continue
		}
		items = append(items, telemetryingest.InsertParams{Payload: payload})
	}

	if err := srv.ingestRecords(ctx, srv.traces, caller, items); err != nil {
		return nil, err
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

// Export implements MetricsServiceServer. Mirrors the original
// otlp_server.py's export_metrics: one stored row per metric (not per
// ResourceMetrics batch, not per data point), named by the metric's own
// name so GET /telemetry/metrics?name=... can find it.
func (srv *Server) ExportMetrics(ctx context.Context, req *colmetricpb.ExportMetricsServiceRequest) (*colmetricpb.ExportMetricsServiceResponse, error) {
	caller, err := srv.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	var items []telemetryingest.InsertParams
	for _, rm := range req.ResourceMetrics {
		resource := convertResource(rm.Resource)
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				payload, err := json.Marshal(metricPayload{
					Description: m.Description,
					Unit:        m.Unit,
					Type:        metricType(m),
					DataPoints:  marshalMetricDataPoints(m),
					Resource:    resource,
				})
				if err != nil {
					srv.logger.Error("marshalling metric record", "error", err)
					continue
				}
				items = append(items, telemetryingest.InsertParams{Payload: payload, Name: m.Name})
			}
		}
	}

	if err := srv.ingestRecords(ctx, srv.metrics, caller, items); err != nil {
		return nil, err
	}
	return &colmetricpb.ExportMetricsServiceResponse{}, nil
}

// Export implements LogsServiceServer. Mirrors the original
// otlp_server.py's export_logs: one stored row per log record (not per
// ResourceLogs batch), with body/severity/timestamp surfaced as
// top-level queryable fields rather than buried in an opaque batch blob.
func (srv *Server) ExportLogs(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	caller, err := srv.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	var items []telemetryingest.InsertParams
	for _, rl := range req.ResourceLogs {
		resource := convertResource(rl.Resource)
		for _, sl := range rl.ScopeLogs {
			for _, lr := range sl.LogRecords {
				payload, err := json.Marshal(logRecordPayload{
					Timestamp:  time.Unix(0, int64(lr.TimeUnixNano)).UTC().Format(time.RFC3339Nano),
					Body:       logBodyString(lr.Body),
					Attributes: convertAttributes(lr.Attributes),
					Resource:   resource,
					TraceID:    hexOrEmpty(lr.TraceId),
					SpanID:     hexOrEmpty(lr.SpanId),
				})
				if err != nil {
					srv.logger.Error("marshalling log record", "error", err)
					continue
				}
				items = append(items, telemetryingest.InsertParams{
					Payload:  payload,
					Severity: telemetryingest.SeverityFromOTLP(lr.SeverityNumber),
				})
			}
		}
	}

	if err := srv.ingestRecords(ctx, srv.logs, caller, items); err != nil {
		return nil, err
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// logRecordPayload is the JSON shape stored in telemetry_logs.payload for
// a single OTLP log record, the Go mirror of otlp_server.py's log_data.
type logRecordPayload struct {
	Timestamp  string            `json:"timestamp"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Resource   map[string]string `json:"resource,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	SpanID     string            `json:"span_id,omitempty"`
}

// metricPayload is the JSON shape stored in telemetry_metrics.payload for
// a single OTLP metric, the Go mirror of otlp_server.py's metric_data.
type metricPayload struct {
	Description string            `json:"description,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Type        string            `json:"type"`
	DataPoints  json.RawMessage   `json:"data_points,omitempty"`
	Resource    map[string]string `json:"resource,omitempty"`
}

// logBodyString extracts the string form of an OTLP log body, the only
// variant DocRouter's log search surfaces (matching the original's
// `body.string_value if body.HasField("string_value") else ""`).
func logBodyString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	if s, ok := v.Value.(*commonpb.AnyValue_StringValue); ok {
		return s.StringValue
	}
	return ""
}

// convertAttributes flattens OTLP KeyValue attributes to a string map,
// taking the string representation of whichever value variant is set.
func convertAttributes(attrs []*commonpb.KeyValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[kv.Key] = anyValueString(kv.Value)
	}
	return out
}

func anyValueString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return fmt.Sprintf("%t", val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return fmt.Sprintf("%d", val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return fmt.Sprintf("%g", val.DoubleValue)
	default:
		return ""
	}
}

// convertResource flattens an OTLP Resource's attributes the same way
// convertAttributes does, matching the original's simplified
// convert_resource helper.
func convertResource(r *resourcepb.Resource) map[string]string {
	if r == nil {
		return nil
	}
	return convertAttributes(r.Attributes)
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

// metricType mirrors the original's get_metric_type: classify a metric by
// which oneof payload it carries.
func metricType(m *metricspb.Metric) string {
	switch {
	case m.GetGauge() != nil:
		return "gauge"
	case m.GetSum() != nil:
		if m.GetSum().IsMonotonic {
			return "counter"
		}
		return "gauge"
	case m.GetHistogram() != nil:
		return "histogram"
	case m.GetSummary() != nil:
		return "summary"
	default:
		return "unknown"
	}
}

// marshalMetricDataPoints renders a metric's data points via protojson on
// whichever oneof is populated, kept verbatim (unlike the flattened log
// body) since data point shape varies by metric type and downstream
// consumers query metrics by name/type, not by point contents.
func marshalMetricDataPoints(m *metricspb.Metric) json.RawMessage {
	switch {
	case m.GetGauge() != nil:
		b, err := marshaler.Marshal(m.GetGauge())
		if err == nil {
			return b
		}
	case m.GetSum() != nil:
		b, err := marshaler.Marshal(m.GetSum())
		if err == nil {
			return b
		}
	case m.GetHistogram() != nil:
		b, err := marshaler.Marshal(m.GetHistogram())
		if err == nil {
			return b
		}
	case m.GetSummary() != nil:
		b, err := marshaler.Marshal(m.GetSummary())
		if err == nil {
			return b
		}
	}
	return nil
}
