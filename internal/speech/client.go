package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// outputBaseName is the fixed file name (without extension) for audio.
const outputBaseName = "chimp-speech"

// filePermissions is the permission mode for written audio files.
const filePermissions = 0o644

// synthesizer is the Polly operation the client uses.
// *polly.Client satisfies it.
type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Client synthesizes speech and persists it to local storage.
type Client struct {
	api        synthesizer
	voiceID    string
	format     string
	outputPath string
}

// New creates a Polly-backed client.
//
// Parameters:
//   - cfg: Speech section of the configuration
//   - creds: Credentials provider, normally credentials.Provider
func New(cfg config.SpeechConfig, creds aws.CredentialsProvider) *Client {
	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	return newClient(polly.NewFromConfig(awsCfg), cfg)
}

func newClient(api synthesizer, cfg config.SpeechConfig) *Client {
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = string(types.OutputFormatMp3)
	}
	return &Client{
		api:        api,
		voiceID:    cfg.VoiceID,
		format:     format,
		outputPath: OutputPath(format),
	}
}

// OutputPath returns the fixed audio file path for an output format.
func OutputPath(format string) string {
	return filepath.Join(os.TempDir(), outputBaseName+"."+extension(format))
}

func extension(format string) string {
	switch types.OutputFormat(format) {
	case types.OutputFormatOggVorbis:
		return "ogg"
	case types.OutputFormatPcm:
		return "pcm"
	case types.OutputFormatJson:
		return "json"
	default:
		return "mp3"
	}
}

// Synthesize requests audio for text.
// The caller owns the returned stream and must close it.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, format string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	out, err := c.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voiceID),
		OutputFormat: types.OutputFormat(format),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return out.AudioStream, nil
}

// Speak synthesizes text with the configured voice and writes it to the
// fixed output file, returning that path.
func (c *Client) Speak(ctx context.Context, text string) (string, error) {
	stream, err := c.Synthesize(ctx, text, c.voiceID, c.format)
	if err != nil {
		return "", err
	}
	if err := Persist(stream, c.outputPath); err != nil {
		return "", err
	}
	return c.outputPath, nil
}

// Persist writes stream to path. The stream is closed on every path, and
// the file is removed if it could not be written completely.
func Persist(stream io.ReadCloser, path string) (err error) {
	defer stream.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrIOWrite, path, err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(path) //nolint:errcheck // Best effort cleanup on error path
		}
	}()

	if _, err = io.Copy(f, stream); err != nil {
		_ = f.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("%w: writing %s: %w", ErrIOWrite, path, err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrIOWrite, path, err)
	}

	return nil
}
