package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Narrator turns an accuracy report into a short plain-language summary
// using OpenAI's API. It is optional; the analyze endpoint works without
// it and simply omits the narrative.
type Narrator struct {
	client openai.Client
	model  string
}

// NewNarrator creates a narrator. It reads the OPENAI_API_KEY
// environment variable for authentication.
func NewNarrator() (*Narrator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Narrator{
		client: client,
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// Summarize produces a two or three sentence readout of the report.
func (n *Narrator) Summarize(ctx context.Context, report *Report) (string, error) {
	if report.Pairs == 0 {
		return "", errors.New("nothing to summarize: no forecast/observation pairs")
	}

	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: n.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You summarize weather forecast verification stats for a hobbyist dashboard. Two or three sentences, plain language, no markdown. Temperatures are Celsius, wind speeds km/h."),
			openai.UserMessage(describeReport(report)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("narrative generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// describeReport renders the stats as compact text for the prompt.
func describeReport(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Forecast accuracy from %s to %s, %d forecast/observation pairs.\n",
		report.Start.Format("2006-01-02"), report.End.Format("2006-01-02"), report.Pairs)

	for _, day := range report.Days() {
		fmt.Fprintf(&b, "Lead day %d:", day)
		for _, field := range scoredFields {
			s := report.LeadDays[day][field]
			if s == nil {
				continue
			}
			fmt.Fprintf(&b, " %s bias %+.1f MAE %.1f (n=%d);", field, s.MeanBias, s.MAE, s.Samples)
		}
		b.WriteString("\n")
	}
	return b.String()
}
