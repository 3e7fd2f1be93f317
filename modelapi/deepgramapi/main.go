package deepgramapi

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"mslcoach/logger"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"go.uber.org/zap"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Domain vocabulary boosted during transcription. Practice answers lean on
// trial and pharma terms that general speech models tend to mangle.
var clinicalKeywords = []string{
	"MSL",
	"endpoint",
	"efficacy",
	"titration",
	"comparator",
	"contraindication",
	"pharmacokinetics",
	"progression-free",
	"prior authorization",
	"formulary",
}

type DeepgramAPI struct {
	logger *logger.LogMiddleware
	dg     *api.Client
}

func Connect(logger *logger.LogMiddleware) *DeepgramAPI {
	c := client.NewRESTWithDefaults()
	dg := api.New(c)

	return &DeepgramAPI{logger: logger, dg: dg}
}

// Transcription is one converted practice recording. DurationSeconds feeds
// the session's recording_duration_seconds field.
type Transcription struct {
	Text            string `json:"text"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Transcribe converts one recorded practice answer into text so it can be
// stored on the session as recording_text.
func (d *DeepgramAPI) Transcribe(ctx context.Context, audioData []byte) (*Transcription, error) {
	tracer := otel.Tracer("deepgramapi")
	ctx, span := tracer.Start(ctx, "Transcribe")
	defer span.End()

	span.SetAttributes(attribute.Int("audio.data.size", len(audioData)))

	logger := d.logger.Logger(ctx)

	options := &interfaces.PreRecordedTranscriptionOptions{
		Punctuate:  true,
		Diarize:    false,
		Language:   "en",
		Utterances: true,
		Model:      "nova-3",
		Keywords:   clinicalKeywords,
	}

	audioReader := bytes.NewReader(audioData)

	span.AddEvent("Calling Deepgram API")
	res, err := d.dg.FromStream(ctx, audioReader, options)
	if err != nil {
		logger.Error("[Deepgram] Transcription failed",
			zap.Error(err))
		span.RecordError(err)
		return nil, fmt.Errorf("deepgram transcription failed: %w", err)
	}

	durationSeconds := 0
	if res != nil && res.Metadata != nil {
		durationSeconds = int(math.Round(res.Metadata.Duration))
	}

	if res != nil && res.Results != nil && res.Results.Channels != nil && len(res.Results.Channels) > 0 {
		channel := res.Results.Channels[0]
		if channel.Alternatives != nil && len(channel.Alternatives) > 0 {
			transcription := channel.Alternatives[0].Transcript
			logger.Info("[Deepgram] Successfully transcribed practice recording",
				zap.Int("transcription_length", len(transcription)),
				zap.Int("duration_seconds", durationSeconds))
			span.AddEvent("Transcription successful", trace.WithAttributes(
				attribute.Int("transcription.length", len(transcription)),
				attribute.Int("transcription.duration_seconds", durationSeconds),
			))
			return &Transcription{Text: transcription, DurationSeconds: durationSeconds}, nil
		}
	}

	logger.Warn("[Deepgram] No transcription found in response")
	span.AddEvent("No transcription found in Deepgram response")
	return nil, fmt.Errorf("no transcription found in response")
}
