package store

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/lexiqai/speech-gateway/internal/resilience"
)

const supabaseTable = "transcriptions"

// Supabase stores records through Supabase's PostgREST endpoint. Segments
// go into a JSONB column of the same row.
type Supabase struct {
	client *postgrest.Client
	retry  *resilience.RetryConfig
}

// NewSupabase creates a client for the project at url using a service key.
func NewSupabase(url, key string, retry *resilience.RetryConfig) (*Supabase, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	client := postgrest.NewClient(url+"/rest/v1", "", map[string]string{
		"apikey":        key,
		"Authorization": fmt.Sprintf("Bearer %s", key),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize Supabase client: %w", client.ClientError)
	}
	return &Supabase{client: client, retry: retry}, nil
}

func (s *Supabase) Name() string { return BackendSupabase }

func (s *Supabase) Close() error { return nil }

// Ping issues a one-row select against the transcriptions table.
func (s *Supabase) Ping(ctx context.Context) error {
	_, _, err := s.client.From(supabaseTable).Select("id", "", false).Limit(1, "").Execute()
	if err != nil {
		return fmt.Errorf("supabase ping: %w", err)
	}
	return nil
}

// Save upserts the record on its id, so a retry after a committed insert
// whose response was lost does not fail on the duplicate key. PostgREST
// calls are not context-aware, so ctx only bounds the retry loop.
func (s *Supabase) Save(ctx context.Context, r *Record) error {
	return resilience.Retry(ctx, func(ctx context.Context) error {
		var inserted []Record
		_, err := s.client.From(supabaseTable).Insert(r, true, "id", "representation", "").ExecuteTo(&inserted)
		if err != nil {
			return fmt.Errorf("failed to insert transcription: %w", err)
		}
		if len(inserted) == 0 {
			return fmt.Errorf("no record returned after insert, id: %s", r.ID)
		}
		return nil
	}, s.retry, resilience.IsRetryableNetworkError)
}
