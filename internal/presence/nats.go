package presence

import (
	"context"         // Watch lifetime
	"encoding/base64" // Key encoding
	"encoding/json"   // Record format
	"errors"          // Error matching
	"fmt"             // Error formatting
	"strings"         // Email normalization

	"kiosk_system/internal/domain" // Presence record

	"github.com/nats-io/nats.go"           // NATS client
	"github.com/nats-io/nats.go/jetstream" // JetStream key-value
	"github.com/sirupsen/logrus"           // Logging
)

// DefaultBucket is the KV bucket holding presence records
const DefaultBucket = "KIOSK_PRESENCE"

// KeyFor maps an email to a KV key. KV keys cannot contain '@'.
func KeyFor(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.ToLower(email)))
}

// NATSSource reads presence records from a JetStream KV bucket, one key per user
type NATSSource struct {
	kv  jetstream.KeyValue // Presence bucket
	log *logrus.Entry      // Component logger
}

// OpenBucket binds (creating if needed) the presence bucket on nc
func OpenBucket(ctx context.Context, nc *nats.Conn, bucket string) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "kiosk presence signals",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("bind KV bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// NewNATSSource wraps an already bound bucket
func NewNATSSource(kv jetstream.KeyValue, log *logrus.Entry) *NATSSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NATSSource{kv: kv, log: log.WithField("bucket", kv.Bucket())}
}

type natsSub struct {
	watcher jetstream.KeyWatcher // Live key watch
	cancel  context.CancelFunc   // Ends the delivery loop
}

func (s *natsSub) Unsubscribe() {
	s.cancel()
	_ = s.watcher.Stop()
}

// Subscribe watches the user's key. The current value is delivered first.
func (s *NATSSource) Subscribe(ctx context.Context, identityKey string, onChange ChangeFunc, onError ErrorFunc) (Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx) // Unsubscribe ends the loop
	key := KeyFor(identityKey)                  // Bucket-safe key
	w, err := s.kv.Watch(watchCtx, key)         // Replays the current value first
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					if watchCtx.Err() == nil && onError != nil {
						onError(errors.New("presence watcher closed"))
					}
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				signal, err := decodeEntry(entry)
				if err != nil {
					s.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Malformed presence record")
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(signal)
			}
		}
	}()

	return &natsSub{watcher: w, cancel: cancel}, nil
}

func decodeEntry(entry jetstream.KeyValueEntry) (string, error) {
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return "", nil // A removed record reads as no signal
	}
	return DecodeRecord(entry.Value())
}

// DecodeRecord extracts the signal from a stored record. A bare string value
// is accepted as the signal itself.
func DecodeRecord(value []byte) (string, error) {
	if len(value) == 0 {
		return "", nil
	}
	var rec domain.PresenceRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		var bare string
		if json.Unmarshal(value, &bare) == nil {
			return bare, nil // "5"
		}
		trimmed := strings.TrimSpace(string(value))
		if strings.ContainsAny(trimmed, "{}[]\"") {
			return "", fmt.Errorf("decode presence record: %w", err)
		}
		return trimmed, nil // 5
	}
	return rec.Signal, nil // {"ownerEmail":..., "signal":"5"}
}

// Publish writes the presence record for email. Used by operator tooling.
func Publish(ctx context.Context, kv jetstream.KeyValue, email, signal string) error {
	b, err := json.Marshal(domain.PresenceRecord{OwnerEmail: strings.ToLower(email), Signal: signal})
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, KeyFor(email), b); err != nil {
		return fmt.Errorf("put presence for %s: %w", email, err)
	}
	return nil
}

// Clear deletes the presence record for email
func Clear(ctx context.Context, kv jetstream.KeyValue, email string) error {
	if err := kv.Delete(ctx, KeyFor(email)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete presence for %s: %w", email, err)
	}
	return nil
}
