package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/scambus/scambus-go"
)

// PollOptions controls one polling request.
type PollOptions struct {
	// Cursor is "0" (beginning of retained history), "$" (only messages
	// strictly after now), or a position token from a previous response.
	// Empty means the server's recommended position.
	Cursor string

	// Order defaults to asc: oldest first. Deliberate — consumers walk
	// the log forward, they do not peek at the newest entry.
	Order scambus.Order

	// Limit bounds the batch size. The server may return fewer messages
	// even when more remain.
	Limit int

	IncludeTest bool

	// DataType, when known, picks the message variant directly instead
	// of per-message discrimination.
	DataType scambus.DataType

	// FailFast turns the first malformed message in the batch into an
	// error for the whole call. Default is skip-and-continue: decode
	// failures are collected in PollResult.DecodeErrors.
	FailFast bool
}

// PollResult is one polled batch. NextCursor is always set, even for an
// empty batch, so the caller can re-poll without tracking message-level
// cursors.
type PollResult struct {
	Messages     []scambus.Message
	DecodeErrors []scambus.BatchError
	NextCursor   string
	HasMore      bool
}

type pollEnvelope struct {
	Messages []map[string]any `json:"messages"`
	// next_cursor / has_more arrive in either casing depending on the
	// API revision; both forms are read.
	NextCursor      string `json:"next_cursor"`
	NextCursorCamel string `json:"nextCursor"`
	HasMore         *bool  `json:"has_more"`
	HasMoreCamel    *bool  `json:"hasMore"`
}

// Poll issues one bounded polling request against a stream's consumption
// endpoint. It performs no retry or backoff: failures surface as typed
// errors and retry policy stays with the caller, whose polling cadence
// is an application concern. A failed request never advances the
// caller's cursor — the cursor is taken by value and only the returned
// NextCursor moves it forward.
func (c *Client) Poll(ctx context.Context, consumerKey string, opts PollOptions) (PollResult, error) {
	ctx, span := tracer.Start(ctx, "Client.Poll")
	defer span.End()

	query := url.Values{}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Order != "" {
		query.Set("order", string(opts.Order))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.IncludeTest {
		query.Set("include_test", "true")
	}

	var envelope pollEnvelope
	err := c.request(ctx, http.MethodGet, "/consume/"+consumerKey+"/poll", query, &envelope)
	if err != nil {
		span.RecordError(err)
		return PollResult{}, err
	}

	result := PollResult{
		NextCursor: envelope.NextCursor,
		HasMore:    envelope.HasMore != nil && *envelope.HasMore,
	}
	if result.NextCursor == "" {
		result.NextCursor = envelope.NextCursorCamel
	}
	if envelope.HasMore == nil && envelope.HasMoreCamel != nil {
		result.HasMore = *envelope.HasMoreCamel
	}

	result.Messages, result.DecodeErrors = scambus.DecodeBatch(envelope.Messages, opts.DataType)
	if opts.FailFast && len(result.DecodeErrors) > 0 {
		return PollResult{}, result.DecodeErrors[0]
	}

	return result, nil
}
