// Package reconcile merges freshly fetched messages into the local store.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/codec"
	"github.com/vdavid/vchat/internal/conversation"
	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/store"
)

// DefaultEchoWindow bounds how old a local echo may be to still match a
// synced copy of the same message.
const DefaultEchoWindow = 5 * time.Minute

// Learner is implemented by contact books that pick up names from headers.
type Learner interface {
	LearnMessage(msg *models.Message)
}

// Result summarizes one reconciled batch.
type Result struct {
	Received       int
	Duplicates     int
	Inserted       int
	EchoesReplaced int
	Created        int
	// ChangedKeys are the keys of every conversation the batch touched, sorted.
	ChangedKeys []string
}

type Reconciler struct {
	resolver   *conversation.Resolver
	learner    Learner
	log        zerolog.Logger
	now        func() time.Time
	echoWindow time.Duration
}

type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithEchoWindow replaces DefaultEchoWindow.
func WithEchoWindow(d time.Duration) Option {
	return func(r *Reconciler) { r.echoWindow = d }
}

// WithLearner makes the reconciler feed every new message to l before
// resolving its conversation.
func WithLearner(l Learner) Option {
	return func(r *Reconciler) { r.learner = l }
}

func New(resolver *conversation.Resolver, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		resolver:   resolver,
		log:        log.With().Str("component", "reconciler").Logger(),
		now:        time.Now,
		echoWindow: DefaultEchoWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply merges batch into g on behalf of user. Running it again with the same
// batch changes nothing. Messages already stored are dropped, local echoes
// of sent messages are replaced by their synced copy, every remaining message
// is attached to the conversation of its key, and the preview of every
// touched conversation is recomputed.
func (r *Reconciler) Apply(g *store.Graph, batch []*models.Message, user string) (Result, error) {
	res := Result{Received: len(batch)}
	now := r.now()
	touched := make(map[string]bool)
	seen := make(map[string]bool, len(batch))

	for _, msg := range batch {
		if msg == nil || msg.ProviderID == "" {
			continue
		}
		if seen[msg.ProviderID] || g.HasProviderID(msg.ProviderID) {
			res.Duplicates++
			continue
		}
		seen[msg.ProviderID] = true

		if msg.IsSent {
			if echo := r.findEcho(g, msg, now); echo != nil {
				touched[echo.ConversationID] = true
				if err := g.DeleteMessage(echo.Key()); err != nil {
					return res, fmt.Errorf("failed to drop local echo %s: %w", echo.Key(), err)
				}
				res.EchoesReplaced++
				r.log.Debug().Str("local_id", echo.LocalID).Str("provider_id", msg.ProviderID).Msg("Local echo replaced")
			}
		}

		conv, created, err := r.assign(g, msg, user, now)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		}

		msg = msg.Clone()
		msg.ConversationID = conv.ID
		if _, err := g.InsertMessage(msg); err != nil {
			return res, fmt.Errorf("failed to insert message %s: %w", msg.ProviderID, err)
		}
		res.Inserted++
		touched[conv.ID] = true

		if !msg.IsSent && !msg.IsRead {
			if err := g.MarkConversationUnread(conv.ID); err != nil {
				return res, err
			}
		}
	}

	keys, err := r.refresh(g, touched)
	if err != nil {
		return res, err
	}
	res.ChangedKeys = keys
	return res, nil
}

// AddEcho stores the optimistic local copy of a message the user just sent,
// so the conversation shows it before the next sync returns the real one.
func (r *Reconciler) AddEcho(g *store.Graph, echo *models.Message, user string) (*models.Message, error) {
	if !echo.IsLocalEcho() {
		return nil, fmt.Errorf("message %q is not a local echo", echo.Key())
	}

	conv, _, err := r.assign(g, echo, user, r.now())
	if err != nil {
		return nil, err
	}
	echo = echo.Clone()
	echo.ConversationID = conv.ID
	stored, err := g.InsertMessage(echo)
	if err != nil {
		return nil, fmt.Errorf("failed to insert local echo %s: %w", echo.LocalID, err)
	}
	if err := g.RefreshPreview(conv.ID); err != nil {
		return nil, err
	}
	return stored, nil
}

// findEcho returns the earliest unsynced local copy of a sent message: same
// primary recipient, same cleaned body, created within the echo window of
// now or of the synced copy's timestamp.
func (r *Reconciler) findEcho(g *store.Graph, msg *models.Message, now time.Time) *models.Message {
	recipient := msg.PrimaryRecipient().Email
	body := echoBody(msg.BodyText)

	matches := g.FindMessages(func(m *models.Message) bool {
		return m.IsLocalEcho() &&
			m.IsSent &&
			m.PrimaryRecipient().Is(recipient) &&
			echoBody(m.BodyText) == body &&
			(within(m.Timestamp, now, r.echoWindow) || within(m.Timestamp, msg.Timestamp, r.echoWindow))
	})
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// assign finds or creates the conversation for msg.
func (r *Reconciler) assign(g *store.Graph, msg *models.Message, user string, now time.Time) (*models.Conversation, bool, error) {
	if r.learner != nil {
		r.learner.LearnMessage(msg)
	}
	id := r.resolver.Resolve(msg, user)

	if conv, ok := g.ConversationByKey(id.Key); ok {
		if !conv.IsGroup {
			return conv, false, nil
		}
		participants := mergeParticipants(conv.Participants, id.Participants)
		name := r.resolver.GroupName(participants)
		if name == conv.DisplayName && len(participants) == len(conv.Participants) {
			return conv, false, nil
		}
		updated := conv.Clone()
		updated.DisplayName = name
		updated.Participants = participants
		if err := g.UpdateConversation(updated); err != nil {
			return nil, false, fmt.Errorf("failed to update conversation %s: %w", conv.ID, err)
		}
		return updated, false, nil
	}

	conv, err := g.AddConversation(&models.Conversation{
		Key:          id.Key,
		DisplayName:  id.DisplayName,
		IsGroup:      id.IsGroup,
		Participants: id.Participants,
		CreatedAt:    now.UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation %s: %w", id.Key, err)
	}
	return conv, true, nil
}

// refresh recomputes previews of touched conversations and drops the ones
// left without members. It returns the touched keys.
func (r *Reconciler) refresh(g *store.Graph, touched map[string]bool) ([]string, error) {
	keys := make([]string, 0, len(touched))
	for id := range touched {
		conv, ok := g.Conversation(id)
		if !ok {
			continue
		}
		keys = append(keys, conv.Key)

		if len(g.Messages(id)) == 0 {
			if err := g.DeleteConversation(id); err != nil {
				return nil, err
			}
			continue
		}
		if err := g.RefreshPreview(id); err != nil {
			return nil, err
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// mergeParticipants returns the union of both lists sorted by address,
// filling in names that were missing.
func mergeParticipants(current, incoming []models.Address) []models.Address {
	byEmail := make(map[string]int, len(current)+len(incoming))
	out := make([]models.Address, 0, len(current)+len(incoming))
	for _, list := range [][]models.Address{current, incoming} {
		for _, a := range list {
			email := strings.ToLower(a.Email)
			if i, ok := byEmail[email]; ok {
				if out[i].Name == "" {
					out[i].Name = a.Name
				}
				continue
			}
			byEmail[email] = len(out)
			out = append(out, models.Address{Name: a.Name, Email: email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// echoBody puts a local echo and a decoded synced copy on the same footing:
// the synced copy went through CleanBody, the echo holds what the user typed.
func echoBody(text string) string {
	return strings.TrimSpace(codec.CleanBody(text))
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
