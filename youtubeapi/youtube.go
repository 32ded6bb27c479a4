// Package youtubeapi wraps the YouTube Data API search endpoint for the single purpose of
// finding a channel's live broadcast. A query never returns an error: every response,
// including transport failures, is classified into exactly one Outcome.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/yt-livestream-rec/config"
	"github.com/onnwee/yt-livestream-rec/telemetry"
)

// DefaultEndpoint is the API root; the search method lives at youtube/v3/search below it.
const DefaultEndpoint = "https://www.googleapis.com/"

const defaultTimeout = 30 * time.Second

// Options tune how the client reaches the API. Zero values use production defaults.
type Options struct {
	Endpoint   string
	HTTPClient *http.Client
}

// Client issues live-event searches with a fixed credential.
type Client struct {
	svc *yt.Service
}

// New builds a search client. The credential is attached by the HTTP transport:
// API keys as the `key` query parameter, bearer tokens as an Authorization header.
func New(ctx context.Context, cred config.Credential, opts Options) (*Client, error) {
	if cred.Token == "" {
		return nil, config.ErrCredentialMissing
	}
	base := http.DefaultTransport
	timeout := defaultTimeout
	if opts.HTTPClient != nil {
		if opts.HTTPClient.Transport != nil {
			base = opts.HTTPClient.Transport
		}
		if opts.HTTPClient.Timeout > 0 {
			timeout = opts.HTTPClient.Timeout
		}
	}
	base = otelhttp.NewTransport(base)

	var rt http.RoundTripper
	switch cred.Kind {
	case config.CredentialBearer:
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"}),
			Base:   base,
		}
	default:
		rt = &transport.APIKey{Key: cred.Token, Transport: base}
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	svc, err := yt.NewService(ctx,
		option.WithHTTPClient(&http.Client{Transport: rt, Timeout: timeout}),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Query performs one search for live videos on channelID and classifies the response.
func (c *Client) Query(ctx context.Context, channelID string) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "youtube.search.live", telemetry.ChannelAttr(channelID))
	defer span.End()

	var (
		resp *yt.SearchListResponse
		err  error
	)
	took := telemetry.TimeFunc(telemetry.QueryDuration, func() {
		resp, err = c.svc.Search.List([]string{"snippet"}).
			Type("video").
			EventType("live").
			ChannelId(channelID).
			Context(ctx).
			Do()
	})
	out := Classify(resp, err)
	telemetry.CountQuery(out.Kind.String())

	span.SetAttributes(telemetry.OutcomeAttr(out.Kind.String()))
	if err := out.Err(); err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	telemetry.LoggerWithCorr(ctx).Debug("search classified",
		slog.String("component", "youtube_search"),
		slog.String("channel_id", channelID),
		slog.String("outcome", out.Kind.String()),
		slog.Int("count", out.Count),
		slog.Int("status", out.Status),
		slog.Duration("took", took))
	return out
}

// Classify maps a search response (or the error from issuing it) to one Outcome.
func Classify(resp *yt.SearchListResponse, err error) Outcome {
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return Outcome{Kind: OutcomeTransportError, Status: gerr.Code, Body: gerr.Body}
		}
		return Outcome{Kind: OutcomeTransportError, Body: err.Error()}
	}
	if resp == nil {
		return Outcome{Kind: OutcomeTransportError, Body: "empty search response"}
	}
	count := 0
	if resp.PageInfo != nil {
		count = int(resp.PageInfo.TotalResults)
	}
	switch {
	case count <= 0:
		return Outcome{Kind: OutcomeNotFound}
	case count == 1:
		if len(resp.Items) == 0 || resp.Items[0] == nil || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
			return Outcome{Kind: OutcomeTransportError, Status: resp.HTTPStatusCode, Body: "totalResults=1 but no result item"}
		}
		item := resp.Items[0]
		ls := Livestream{VideoID: item.Id.VideoId}
		if item.Snippet != nil {
			ls.ChannelTitle = item.Snippet.ChannelTitle
			ls.Title = item.Snippet.Title
		}
		return Outcome{Kind: OutcomeFound, Stream: ls, Count: 1, Status: resp.HTTPStatusCode}
	default:
		return Outcome{Kind: OutcomeAmbiguous, Count: count, Status: resp.HTTPStatusCode}
	}
}
