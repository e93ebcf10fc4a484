package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/vdavid/vchat/internal/conversation"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
)

const (
	dedupBucket     = 10 * time.Second
	dedupBodyPrefix = 100
)

// MaintenanceReport summarizes a maintenance pass.
type MaintenanceReport struct {
	ConversationsMerged int
	KeysNormalized      int
	DuplicatesRemoved   int
}

// Maintain repairs the store after load. Conversations whose keys only
// differ by case or member order are merged into the one with the latest
// preview, and repeated copies of a message inside a conversation are
// removed. It satisfies store.MaintenanceFunc.
func (r *Reconciler) Maintain(g *store.Graph) error {
	report, err := r.maintain(g)
	if err != nil {
		return err
	}
	r.log.Info().
		Int("merged", report.ConversationsMerged).
		Int("normalized", report.KeysNormalized).
		Int("duplicates", report.DuplicatesRemoved).
		Msg("Maintenance finished")
	return nil
}

func (r *Reconciler) maintain(g *store.Graph) (MaintenanceReport, error) {
	var report MaintenanceReport

	groups := make(map[string][]*models.Conversation)
	var order []string
	for _, c := range g.Conversations() {
		key := conversation.NormalizeKey(c.Key)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}
	sort.Strings(order)

	for _, key := range order {
		merged, normalized, err := mergeGroup(g, key, groups[key])
		if err != nil {
			return report, err
		}
		report.ConversationsMerged += merged
		if normalized {
			report.KeysNormalized++
		}
	}

	for _, c := range g.Conversations() {
		removed, err := dropDuplicates(g, c.ID)
		if err != nil {
			return report, err
		}
		if removed > 0 {
			report.DuplicatesRemoved += removed
			if err := g.RefreshPreview(c.ID); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// mergeGroup collapses conversations sharing a normalized key into the one
// with the latest preview timestamp and rewrites its key to canonical form.
func mergeGroup(g *store.Graph, key string, convs []*models.Conversation) (int, bool, error) {
	primary := convs[0]
	for _, c := range convs[1:] {
		if c.LastMessageAt.After(primary.LastMessageAt) {
			primary = c
		}
	}

	participants := primary.Participants
	merged := 0
	for _, c := range convs {
		if c.ID == primary.ID {
			continue
		}
		for _, m := range g.Messages(c.ID) {
			if err := g.MoveMessage(m.Key(), primary.ID); err != nil {
				return merged, false, fmt.Errorf("failed to move message %s: %w", m.Key(), err)
			}
		}
		participants = mergeParticipants(participants, c.Participants)
		if err := g.DeleteConversation(c.ID); err != nil {
			return merged, false, fmt.Errorf("failed to delete merged conversation %s: %w", c.ID, err)
		}
		merged++
	}

	if merged == 0 && primary.Key == key {
		return 0, false, nil
	}

	updated := primary.Clone()
	updated.Key = key
	if merged > 0 {
		updated.Participants = participants
		updated.IsGroup = updated.IsGroup || len(participants) > 1
	}
	if err := g.UpdateConversation(updated); err != nil {
		return merged, false, fmt.Errorf("failed to rekey conversation %s: %w", primary.ID, err)
	}
	if err := g.RefreshPreview(primary.ID); err != nil {
		return merged, false, err
	}
	return merged, primary.Key != key, nil
}

// dropDuplicates removes later copies of a message within one conversation.
// Copies share direction, a 10-second timestamp bucket and the first 100
// characters of body. This is an approximation: distinct short messages sent
// in the same bucket collapse, and copies straddling a bucket edge survive.
func dropDuplicates(g *store.Graph, conversationID string) (int, error) {
	seen := make(map[string]bool)
	removed := 0
	for _, m := range g.Messages(conversationID) {
		key := dedupKey(m)
		if !seen[key] {
			seen[key] = true
			continue
		}
		if err := g.DeleteMessage(m.Key()); err != nil {
			return removed, fmt.Errorf("failed to delete duplicate %s: %w", m.Key(), err)
		}
		removed++
	}
	return removed, nil
}

func dedupKey(m *models.Message) string {
	bucket := floorDiv(m.Timestamp.Unix(), int64(dedupBucket/time.Second))
	body := []rune(m.BodyText)
	if len(body) > dedupBodyPrefix {
		body = body[:dedupBodyPrefix]
	}
	return fmt.Sprintf("%t|%d|%s", m.IsSent, bucket, string(body))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
