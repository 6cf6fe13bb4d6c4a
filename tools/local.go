package tools

import (
	"context"
	"encoding/json"
	"time"

	"hermitcrab/pscale"
)

// GeolocationMessage is all a terminal kernel can say about location
const GeolocationMessage = "Geolocation requires user permission. Ask the user for their location."

type EmptyInput struct{}

var emptySchema = GenerateSchema[EmptyInput]()

// DateTime is the get_datetime result.
type DateTime struct {
	ISO      string `json:"iso"`
	Unix     int64  `json:"unix"`
	Timezone string `json:"timezone"`
	Local    string `json:"local"`
	PscaleT  string `json:"pscale_t"`
}

// DateTimeTool reports the current time from clock.
func DateTimeTool(clock func() time.Time) Tool {
	if clock == nil {
		clock = time.Now
	}
	return Tool{
		Name:        "get_datetime",
		Description: "Get current date, time, timezone, unix timestamp and pscale temporal coordinate.",
		InputSchema: emptySchema,
		Function: func(_ context.Context, _ json.RawMessage) (string, error) {
			now := clock()
			data, err := json.Marshal(DateTime{
				ISO:      now.UTC().Format("2006-01-02T15:04:05.000Z"),
				Unix:     now.UnixMilli(),
				Timezone: now.Location().String(),
				Local:    now.Format("1/2/2006, 3:04:05 PM"),
				PscaleT:  pscale.TemporalCoordinate(now.UTC()),
			})
			return string(data), err
		},
	}
}

func GeolocationTool() Tool {
	return Tool{
		Name:        "get_geolocation",
		Description: "Attempt to get user location. May require permission.",
		InputSchema: emptySchema,
		Function: func(context.Context, json.RawMessage) (string, error) {
			return GeolocationMessage, nil
		},
	}
}
