// Package embedexport streams session embeddings to an external vector
// store over Arrow Flight, adapting the teacher's internal/arrow_client
// (client.go, mock_client.go) which mixed arrow-go/v18 in go.mod with
// apache/arrow/go/v16 imports and referenced an undeclared err before its
// first assignment. This rewrite pins to v18 throughout and narrows the
// surface to the one operation internal/config.EmbedSink needs.
package embedexport

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/llamacore/llamacore/internal/logger"
)

// Sink streams embeddings to a Flight endpoint's DoPut RPC, one record per
// PutEmbedding call. Schema is (session_id: utf8, embedding: fixed_size_list
// of float32), sized to the first vector it ever sees.
type Sink struct {
	client flight.Client
	mem    memory.Allocator

	dim    int
	schema *arrow.Schema
}

// Dial connects to a Flight server at addr (host:port), mirroring the
// teacher's FlightClient.Connect. No handshake is performed, and ctx is
// not used.
func Dial(ctx context.Context, addr string) (*Sink, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("embedexport: dial %s: %w", addr, err)
	}
	return &Sink{client: client, mem: memory.NewGoAllocator()}, nil
}

// Close releases the underlying gRPC connection.
func (s *Sink) Close() error {
	return s.client.Close()
}

// PutEmbedding sends one session's embedding vector as a single-row Arrow
// record over DoPut, satisfying internal/config.EmbedSink. The first call
// fixes this sink's vector width; later calls with a mismatched length
// error rather than silently truncating.
func (s *Sink) PutEmbedding(sessionID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("embedexport: empty embedding for session %q", sessionID)
	}
	if s.schema == nil {
		s.dim = len(vec)
		s.schema = arrow.NewSchema([]arrow.Field{
			{Name: "session_id", Type: arrow.BinaryTypes.String},
			{Name: "embedding", Type: arrow.FixedSizeListOf(int32(s.dim), arrow.PrimitiveTypes.Float32)},
		}, nil)
	}
	if len(vec) != s.dim {
		return fmt.Errorf("embedexport: embedding width %d does not match sink width %d", len(vec), s.dim)
	}

	record, err := s.buildRecord(sessionID, vec)
	if err != nil {
		return err
	}
	defer record.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stream, err := s.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("embedexport: open DoPut stream: %w", err)
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(s.schema))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"embeddings", sessionID},
	})
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("embedexport: write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("embedexport: close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("embedexport: close send: %w", err)
	}
	if _, err := stream.Recv(); err != nil {
		logger.Log.Warn("embedexport: put result", "session", sessionID, "err", err)
	}
	return nil
}

func (s *Sink) buildRecord(sessionID string, vec []float32) (arrow.Record, error) {
	idBuilder := array.NewStringBuilder(s.mem)
	defer idBuilder.Release()
	idBuilder.Append(sessionID)
	idArr := idBuilder.NewStringArray()
	defer idArr.Release()

	listBuilder := array.NewFixedSizeListBuilder(s.mem, int32(s.dim), arrow.PrimitiveTypes.Float32)
	defer listBuilder.Release()
	listBuilder.Append(true)
	valBuilder, ok := listBuilder.ValueBuilder().(*array.Float32Builder)
	if !ok {
		return nil, fmt.Errorf("embedexport: unexpected fixed-size-list value builder type")
	}
	valBuilder.AppendValues(vec, nil)
	embArr := listBuilder.NewListArray()
	defer embArr.Release()

	return array.NewRecord(s.schema, []arrow.Array{idArr, embArr}, 1), nil
}
