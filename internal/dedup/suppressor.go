package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/logger"
	"leadrouter/pkg/metrics"
)

// Verdict is the outcome of a suppression check. Reason is one of the
// constants.Skip* values when Suppressed is true.
type Verdict struct {
	Suppressed bool
	Reason     string
}

var pass = Verdict{}

// Suppressor drops webhook retries and echoes of messages the router sent itself.
type Suppressor struct {
	store           Store
	duplicateWindow time.Duration
	echoWindow      time.Duration
	onStoreError    string
	logger          logger.Logger
}

func NewSuppressor(store Store, cfg config.DedupConfig, log logger.Logger) *Suppressor {
	s := &Suppressor{
		store:           store,
		duplicateWindow: cfg.DuplicateWindow,
		echoWindow:      cfg.EchoWindow,
		onStoreError:    strings.ToLower(cfg.OnStoreError),
		logger:          log,
	}
	if s.duplicateWindow <= 0 {
		s.duplicateWindow = constants.DefaultDuplicateWindow
	}
	if s.echoWindow <= 0 {
		s.echoWindow = constants.DefaultEchoWindow
	}
	if s.onStoreError == "" {
		s.onStoreError = constants.FallbackAllow
	}
	return s
}

// ContentFingerprint is the retry key for a message body within one conversation.
func ContentFingerprint(conversationID, content string) string {
	return conversationID + ":" + strings.TrimSpace(content)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Check runs, in order, the message id, echo and content checks.
func (s *Suppressor) Check(ctx context.Context, conversationID, messageID, content string) (Verdict, error) {
	if v, err := s.IsDuplicate(ctx, messageID, ""); err != nil || v.Suppressed {
		return v, err
	}

	echo, err := s.IsEcho(ctx, conversationID, content, messageID)
	if err != nil {
		return pass, err
	}
	if echo {
		return Verdict{Suppressed: true, Reason: constants.SkipBotEcho}, nil
	}

	return s.IsDuplicate(ctx, "", ContentFingerprint(conversationID, content))
}

// IsDuplicate records messageID and contentFingerprint, reporting whether either was
// already seen within the duplicate window. Empty arguments are skipped.
func (s *Suppressor) IsDuplicate(ctx context.Context, messageID, contentFingerprint string) (Verdict, error) {
	if messageID != "" {
		added, err := s.store.Add(ctx, constants.CacheKeyPrefixDedupID+messageID, s.duplicateWindow)
		if err != nil {
			if err := s.storeError(ctx, "add_id", err); err != nil {
				return pass, err
			}
		} else if !added {
			return Verdict{Suppressed: true, Reason: constants.SkipDuplicateID}, nil
		}
	}

	if contentFingerprint != "" {
		added, err := s.store.Add(ctx, constants.CacheKeyPrefixDedupContent+digest(contentFingerprint), s.duplicateWindow)
		if err != nil {
			if err := s.storeError(ctx, "add_content", err); err != nil {
				return pass, err
			}
		} else if !added {
			return Verdict{Suppressed: true, Reason: constants.SkipDuplicateContent}, nil
		}
	}

	return pass, nil
}

// Forget drops the retry fingerprints Check recorded for a message, so a redelivery
// after a failed route is processed again. Echo markers are left alone.
func (s *Suppressor) Forget(ctx context.Context, conversationID, messageID, content string) error {
	var errs []error
	if messageID != "" {
		if err := s.store.Remove(ctx, constants.CacheKeyPrefixDedupID+messageID); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(content) != "" {
		key := constants.CacheKeyPrefixDedupContent + digest(ContentFingerprint(conversationID, content))
		if err := s.store.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		metrics.IncDedupStoreError(s.store.Name(), "forget")
		return fmt.Errorf("failed to forget message fingerprints: %w", errors.Join(errs...))
	}
	return nil
}

// IsEcho reports whether the message matches one the router sent to conversationID
// within the echo window, by id or by content.
func (s *Suppressor) IsEcho(ctx context.Context, conversationID, content, messageID string) (bool, error) {
	if messageID != "" {
		hit, err := s.store.Contains(ctx, constants.CacheKeyPrefixSentID+messageID)
		if err != nil {
			if err := s.storeError(ctx, "contains_sent_id", err); err != nil {
				return false, err
			}
		} else if hit {
			return true, nil
		}
	}

	if strings.TrimSpace(content) == "" {
		return false, nil
	}
	hit, err := s.store.Contains(ctx, constants.CacheKeyPrefixSent+digest(ContentFingerprint(conversationID, content)))
	if err != nil {
		return false, s.storeError(ctx, "contains_sent", err)
	}
	return hit, nil
}

// RememberSent registers a message the router posted so its echo is recognised.
func (s *Suppressor) RememberSent(ctx context.Context, conversationID, content, messageID string) error {
	if strings.TrimSpace(content) != "" {
		key := constants.CacheKeyPrefixSent + digest(ContentFingerprint(conversationID, content))
		if _, err := s.store.Add(ctx, key, s.echoWindow); err != nil {
			metrics.IncDedupStoreError(s.store.Name(), "remember_sent")
			return fmt.Errorf("failed to remember sent message: %w", err)
		}
	}

	if messageID != "" {
		if _, err := s.store.Add(ctx, constants.CacheKeyPrefixSentID+messageID, s.echoWindow); err != nil {
			metrics.IncDedupStoreError(s.store.Name(), "remember_sent_id")
			return fmt.Errorf("failed to remember sent message id: %w", err)
		}
	}
	return nil
}

// storeError applies the on_store_error policy: nil under allow, so the message is treated as new.
func (s *Suppressor) storeError(ctx context.Context, operation string, err error) error {
	metrics.IncDedupStoreError(s.store.Name(), operation)

	if s.onStoreError == constants.FallbackAllow {
		metrics.IncFallbackUsage("dedup", "allow_on_error", operation)
		s.logger.WarnwCtx(ctx, "Fingerprint store error, treating message as new (fallback: allow)",
			"store", s.store.Name(),
			"operation", operation,
			"error", err,
		)
		return nil
	}

	metrics.IncFallbackUsage("dedup", "reject_on_error", operation)
	return fmt.Errorf("fingerprint store %s %s failed: %w", s.store.Name(), operation, err)
}
