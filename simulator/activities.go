package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chui/internal/utils"

	"github.com/rs/zerolog/log"
)

var phrases = []string{
	"hey, got a minute?",
	"lunch later?",
	"pushed the fix, can you take a look",
	"on my way",
	"sounds good",
	"did you see the build failure?",
	"thanks!",
	"meeting moved to 3pm",
}

// SimulateActivities runs Workers loops that share one rate limiter until
// ctx is done.
func (s *Simulator) SimulateActivities(ctx context.Context) {
	log.Info().Float64("rate", s.config.MessageRate).Int("workers", s.config.Workers).Msg("Starting activities")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
				if err := s.step(ctx); err != nil && ctx.Err() == nil {
					log.Debug().Err(err).Int("worker", workerID).Msg("Activity failed")
				}
			}
		}(i)
	}
	wg.Wait()
}

// step performs one send or read for a random user.
func (s *Simulator) step(ctx context.Context) error {
	s.rngMu.Lock()
	senderIdx := s.rng.Intn(len(s.users))
	recipientIdx := s.recipientFor(senderIdx)
	read := s.rng.Float64() < s.config.ReadRatio
	body := phrases[s.rng.Intn(len(phrases))]
	s.rngMu.Unlock()

	sender := s.users[senderIdx]
	if read {
		return s.readInbox(ctx, sender)
	}
	return s.sendMessage(ctx, sender, s.users[recipientIdx], body)
}

// recipientFor draws a Zipf-distributed index that is never senderIdx.
// Callers hold rngMu.
func (s *Simulator) recipientFor(senderIdx int) int {
	idx := int(s.zipf.Uint64())
	if idx >= senderIdx {
		idx++
	}
	return idx
}

func (s *Simulator) sendMessage(ctx context.Context, from, to *SimulatedUser, body string) error {
	return s.timed(func() error {
		res, err := s.client.Send(ctx, from.Session, to.Username, body)
		if err != nil {
			return fmt.Errorf("send %s -> %s: %w", from.Username, to.Username, err)
		}
		s.stats.mu.Lock()
		s.stats.MessagesSent++
		if res.SummaryStale {
			s.stats.StaleSummaries++
		}
		s.stats.mu.Unlock()
		return nil
	})
}

// readInbox lists the user's conversations and opens the most recent one,
// the way a person checking messages would.
func (s *Simulator) readInbox(ctx context.Context, u *SimulatedUser) error {
	var conversationID string
	err := s.timed(func() error {
		summaries, err := s.client.Conversations(ctx, u.Session, 0)
		if err != nil {
			return err
		}
		s.stats.mu.Lock()
		s.stats.InboxReads++
		s.stats.mu.Unlock()
		if len(summaries) > 0 {
			conversationID = summaries[0].ConversationID.String()
		}
		return nil
	})
	if err != nil || conversationID == "" {
		return err
	}

	return s.timed(func() error {
		if _, err := s.client.Messages(ctx, u.Session, conversationID, 0); err != nil {
			return err
		}
		s.stats.mu.Lock()
		s.stats.ConversationRead++
		s.stats.mu.Unlock()
		return nil
	})
}

func errorCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	if code := utils.ErrorCode(err); code != "" {
		return code
	}
	return "UNKNOWN"
}
