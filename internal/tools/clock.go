package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/candor0/candor/internal/tool"
)

// CurrentTimeInput defines the current_time arguments.
type CurrentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name, e.g. Asia/Tokyo (default UTC)"`
}

// NewCurrentTime builds the current_time tool.
func NewCurrentTime() (*tool.Tool, error) {
	schema, err := jsonschema.For[CurrentTimeInput](nil)
	if err != nil {
		return nil, fmt.Errorf("current_time schema: %w", err)
	}

	return &tool.Tool{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a specific timezone.",
		Schema:      schema,
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			tz, _ := args["timezone"].(string)
			loc := time.UTC
			if tz != "" {
				var err error
				loc, err = time.LoadLocation(tz)
				if err != nil {
					return nil, &tool.Failure{
						Message:     fmt.Sprintf("unknown timezone %q", tz),
						Recoverable: true,
					}
				}
			}

			now := time.Now().In(loc)
			return map[string]any{
				"time":     now.Format(time.RFC3339),
				"timezone": loc.String(),
			}, nil
		},
	}, nil
}
