package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	NDJSONContentType = "application/x-ndjson"

	// At most relayBufferedChunks*relayChunkSize bytes (256 KiB) of a
	// stream are held in memory, however long the stream runs.
	relayChunkSize      = 32 * 1024
	relayBufferedChunks = 8
)

var errInvalidUpstreamJSON = errors.New("upstream returned a body that is not JSON")

// IsStreaming reports whether the runtime answered with newline delimited JSON.
func IsStreaming(header http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == NDJSONContentType
}

// Relay writes an upstream reply back to the client.
type Relay struct {
	logger zerolog.Logger
}

func NewRelay(logger zerolog.Logger) Relay {
	return Relay{logger: logger}
}

// Forward streams NDJSON replies chunk by chunk and buffers everything else
// as one JSON document. It always closes resp.
func (rl Relay) Forward(c *gin.Context, resp *UpstreamResponse) error {
	if IsStreaming(resp.Header) {
		return rl.stream(c, resp)
	}
	return rl.buffered(c, resp)
}

func (rl Relay) buffered(c *gin.Context, resp *UpstreamResponse) error {
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading upstream body: %w", ErrUpstreamUnavailable, err)
	}
	if len(body) == 0 {
		// delete and copy answer with an empty 200
		c.Status(resp.StatusCode)
		return nil
	}
	if !gjson.ValidBytes(body) {
		return errInvalidUpstreamJSON
	}
	c.Data(resp.StatusCode, "application/json; charset=utf-8", body)
	return nil
}

// stream pumps the upstream body through a bounded channel. The reader
// goroutine blocks once the channel is full, so a slow client slows the
// upstream read instead of growing memory. A client disconnect cancels the
// request context, which closes the upstream body and ends both sides.
func (rl Relay) stream(c *gin.Context, resp *UpstreamResponse) error {
	ctx, stop := context.WithCancel(c.Request.Context())

	chunks := make(chan []byte, relayBufferedChunks)
	readErr := make(chan error, 1)
	producerDone := make(chan struct{})

	defer func() {
		stop()
		resp.Close()
		<-producerDone
	}()

	go func() {
		defer close(producerDone)
		defer close(chunks)
		for {
			buf := make([]byte, relayChunkSize)
			n, err := resp.Body.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	contentType := resp.Header.Get("Content-Type")
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	var written int64
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErr:
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("%w: stream interrupted after %d bytes: %w", ErrUpstreamUnavailable, written, err)
				default:
					rl.logger.Debug().Int64("bytes", written).Msg("stream complete")
					return nil
				}
			}
			n, err := c.Writer.Write(chunk)
			written += int64(n)
			if err != nil {
				return fmt.Errorf("writing stream to client: %w", err)
			}
			c.Writer.Flush()
		case <-ctx.Done():
			rl.logger.Info().Int64("bytes", written).Msg("client went away, aborting upstream stream")
			return ctx.Err()
		}
	}
}
