package youtubeapi

import (
	"errors"
	"fmt"
)

// OutcomeKind tags which variant of Outcome holds.
type OutcomeKind int

const (
	// OutcomeNotFound: the channel has no live video right now.
	OutcomeNotFound OutcomeKind = iota
	// OutcomeFound: exactly one live video; Stream is populated.
	OutcomeFound
	// OutcomeAmbiguous: more than one live video; Count holds how many.
	OutcomeAmbiguous
	// OutcomeTransportError: the request failed; Status and Body carry diagnostics.
	// Status is 0 when no HTTP response was received.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFound:
		return "found"
	case OutcomeAmbiguous:
		return "ambiguous"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Livestream identifies one broadcasting video.
type Livestream struct {
	ChannelTitle string
	Title        string
	VideoID      string
}

// Outcome is the result of one search. Only the fields belonging to Kind are meaningful.
type Outcome struct {
	Kind   OutcomeKind
	Stream Livestream
	Count  int
	Status int
	Body   string
}

// Err describes failure outcomes for spans and logs. It is nil for Found and NotFound.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeTransportError:
		if o.Status == 0 {
			return errors.New("search request failed: " + o.Body)
		}
		return fmt.Errorf("bad response status '%d': %s", o.Status, o.Body)
	case OutcomeAmbiguous:
		return fmt.Errorf("%d livestreams airing on channel", o.Count)
	default:
		return nil
	}
}
