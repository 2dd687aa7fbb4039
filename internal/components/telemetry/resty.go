package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_count    = "resty.requests"
)

type instrumentResty struct {
	tel       API
	tracer    trace.Tracer
	idcounter *uint64
}

// InstrumentResty attaches logging and tracing middleware to a resty client.
// Every attempt (including retries) gets its own id and span, the spans of
// all attempts are siblings under the caller's context.
func InstrumentResty(client *resty.Client, tel API, tracerName string) {
	InstrumentRestyWithTracer(client, tel, otel.Tracer(tracerName))
}

func InstrumentRestyWithTracer(client *resty.Client, tel API, tracer trace.Tracer) {
	var idcounter uint64
	i := instrumentResty{
		tel:       tel,
		tracer:    tracer,
		idcounter: &idcounter,
	}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need to rely on chrono because it only measures a duration.
	startTime time.Time
	span      trace.Span
	// parent is the context the request was made with, before any attempt
	parent context.Context
}

// RequestID returns the id the instrumentation assigned to the request that
// carries the given context, or 0 if it was not instrumented.
func RequestID(ctx context.Context) uint64 {
	value, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		return 0
	}
	return value.id
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	parent := req.Context()
	if previous, ok := parent.Value(reqCtxKey).(reqCtx); ok {
		// a failed transport attempt never reaches onAfterResponse
		if previous.span.IsRecording() {
			previous.span.SetStatus(codes.Error, "attempt failed, retrying")
			previous.span.End()
		}
		parent = previous.parent
	}
	ctx, span := i.tracer.Start(parent, fmt.Sprintf("http %s", req.Method))

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
		span:      span,
		parent:    parent,
	})
	span.SetAttributes(
		attribute.Int64("request.id", int64(id)),
		attribute.Int("request.attempt", req.Attempt),
	)
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)
	i.tel.ReportCount(report_resty_count, int64(id))

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	reqCtx, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}
	defer reqCtx.span.End()

	if res.RawResponse != nil {
		reqCtx.span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	// res.Request.RawRequest is nil in onBeforeRequest
	if res.Request.RawRequest != nil {
		reqCtx.span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.IsError() {
		reqCtx.span.SetStatus(codes.Error, res.Status())
	}

	i.tel.ReportDebug(
		report_resty_response,
		reqCtx.id,
		time.Since(reqCtx.startTime).String(),
		res.Status(),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	reqCtx, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		i.tel.ReportBroken(report_resty_response, err, req.Method, req.URL)
		return
	}
	defer reqCtx.span.End()

	reqCtx.span.RecordError(err)
	reqCtx.span.SetStatus(codes.Error, "request failed")

	i.tel.ReportBroken(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		time.Since(reqCtx.startTime),
	)
}
