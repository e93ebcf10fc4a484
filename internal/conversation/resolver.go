// Package conversation maps messages onto contact-centric conversation
// identities.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/vdavid/vchat/internal/models"
)

// maxNamedParticipants is how many names a group display name spells out.
const maxNamedParticipants = 3

// ContactBook supplies display names for addresses.
type ContactBook interface {
	Name(email string) (string, bool)
}

// Identity is the resolved conversation identity of a message.
type Identity struct {
	Key          string
	DisplayName  string
	IsGroup      bool
	Participants []models.Address
}

type Resolver struct {
	contacts ContactBook
}

// NewResolver creates a resolver. contacts may be nil.
func NewResolver(contacts ContactBook) *Resolver {
	return &Resolver{contacts: contacts}
}

// Resolve computes the conversation identity of msg for the given user.
//
// Participants are the sender plus every To/Cc/Bcc recipient, minus the
// user. More than one participant makes a group, and the sender counts
// toward that threshold: a message from amy to the user and bob is the
// same group as the user's reply to amy and bob. The key is the sorted,
// lower-cased, comma-joined participant set, so every message exchanged
// with the same people lands on the same key regardless of header order
// or direction.
func (r *Resolver) Resolve(msg *models.Message, user string) Identity {
	participants := Participants(msg, user)

	if len(participants) == 0 {
		// Notes to self.
		self := models.Address{Email: normalizeAddress(user)}
		return Identity{
			Key:          self.Email,
			DisplayName:  r.Name(self),
			Participants: []models.Address{self},
		}
	}

	emails := make([]string, len(participants))
	for i, p := range participants {
		emails[i] = p.Email
	}

	id := Identity{
		Key:          Key(emails),
		IsGroup:      len(participants) > 1,
		Participants: participants,
	}
	if id.IsGroup {
		id.DisplayName = r.GroupName(participants)
	} else {
		id.DisplayName = r.Name(participants[0])
	}
	return id
}

// Participants returns the distinct non-user participants of msg sorted by
// address. The first header name seen for an address is kept.
func Participants(msg *models.Message, user string) []models.Address {
	user = normalizeAddress(user)
	seen := make(map[string]int)
	var out []models.Address

	add := func(a models.Address) {
		email := normalizeAddress(a.Email)
		if email == "" || email == user {
			return
		}
		if i, ok := seen[email]; ok {
			if out[i].Name == "" {
				out[i].Name = a.Name
			}
			return
		}
		seen[email] = len(out)
		out = append(out, models.Address{Name: a.Name, Email: email})
	}

	add(msg.From)
	for _, a := range msg.Recipients() {
		add(a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Key builds a conversation key from participant addresses: lower-cased,
// deduplicated, sorted and comma-joined.
func Key(emails []string) string {
	sorted := make([]string, 0, len(emails))
	for _, e := range emails {
		if normalized := normalizeAddress(e); normalized != "" {
			sorted = append(sorted, normalized)
		}
	}
	sort.Strings(sorted)
	deduped := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			deduped = append(deduped, s)
		}
	}
	return strings.Join(deduped, ",")
}

// NormalizeKey rewrites an existing key into canonical form. Keys that only
// differ by case or member order normalize to the same value.
func NormalizeKey(key string) string {
	return Key(strings.Split(key, ","))
}

// Name returns the contact-book name for a, or a name derived from the local
// part of the address.
func (r *Resolver) Name(a models.Address) string {
	if r.contacts != nil {
		if name, ok := r.contacts.Name(normalizeAddress(a.Email)); ok && name != "" {
			return name
		}
	}
	return Humanize(a.Email)
}

// GroupName spells out up to three participant names and summarizes the rest,
// as in "Ann, Bob, Cat, and 2 more".
func (r *Resolver) GroupName(participants []models.Address) string {
	n := len(participants)
	shown := participants
	if n > maxNamedParticipants {
		shown = participants[:maxNamedParticipants]
	}

	names := make([]string, len(shown))
	for i, p := range shown {
		names[i] = r.Name(p)
	}

	name := strings.Join(names, ", ")
	if n > maxNamedParticipants {
		name = fmt.Sprintf("%s, and %d more", name, n-maxNamedParticipants)
	}
	return name
}

// Humanize turns "jane.doe+news@example.com" into "Jane Doe".
func Humanize(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	if len(words) == 0 {
		return email
	}
	return strings.Join(words, " ")
}

func normalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
